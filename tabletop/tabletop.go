// Package tabletop is a sample land type: a shared virtual tabletop with
// tokens and area templates, adapted from a single-process, single-room
// tabletop session into a LandKeeper definition that can run many instances
// concurrently and filter a per-player note field from other players.
package tabletop

import (
	"fmt"

	"landkeeper/keeper"
)

// TokenData is one placed miniature on the board.
type TokenData struct {
	Name      string  `json:"name"`
	ImgPath   string  `json:"imgPath"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	TokenSize float64 `json:"tokenSize"`
}

// AreaTemplate is a drawn effect area (e.g. a spell's area of effect).
type AreaTemplate struct {
	Shape   string  `json:"shape"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Size    float64 `json:"size"`
	Color   string  `json:"color"`
	Opacity float64 `json:"opacity"`
}

// State is the tabletop land's full authoritative state. PlayerNotes is
// private: each player sees only their own entry, keyed by playerID, per
// statetree.Filter's convention for private fields.
type State struct {
	DisplayedTokens   map[string]TokenData    `json:"displayedTokens"`
	BackgroundImgPath string                  `json:"backgroundImgPath"`
	ShowGrid          bool                    `json:"showGrid"`
	GridUnit          float64                 `json:"gridUnit"`
	AreaTemplates     map[string]AreaTemplate `json:"areaTemplates"`
	PlayerNotes       map[string]string       `json:"playerNotes" sync:"private"`
}

func NewState() State {
	return State{
		DisplayedTokens:   make(map[string]TokenData),
		BackgroundImgPath: "/assets/default/maps/tavern.jpg",
		ShowGrid:          true,
		GridUnit:          96,
		AreaTemplates:     make(map[string]AreaTemplate),
		PlayerNotes:       make(map[string]string),
	}
}

// Payload types, one per registered event.
type AddTokenPayload struct {
	ID    string    `json:"id"`
	Token TokenData `json:"token"`
}
type MoveTokenPayload struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}
type DeleteTokenPayload struct {
	ID string `json:"id"`
}
type ChangeBackgroundPayload struct {
	ImgPath string `json:"imgPath"`
}
type AddAreaTemplatePayload struct {
	ID       string       `json:"id"`
	Template AreaTemplate `json:"template"`
}
type MoveAreaTemplatePayload struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}
type DeleteAreaTemplatePayload struct {
	ID string `json:"id"`
}
type SetNotePayload struct {
	Text string `json:"text"`
}

// Definition returns the tabletop land type's full rule table.
func Definition() keeper.Definition[State] {
	return keeper.Definition[State]{
		OnJoin: []keeper.JoinRule[State]{onJoin},
		OnLeave: []keeper.LeaveRule[State]{onLeave},
		Events: map[string][]keeper.Rule[State]{
			"add_token":             {addToken},
			"move_token":            {moveToken},
			"delete_token":          {deleteToken},
			"clear_tokens":          {clearTokens},
			"change_background":     {changeBackground},
			"toggle_grid":           {toggleGrid},
			"add_area_template":     {addAreaTemplate},
			"move_area_template":    {moveAreaTemplate},
			"delete_area_template":  {deleteAreaTemplate},
			"clear_area_templates":  {clearAreaTemplates},
			"set_note":              {setNote},
		},
	}
}

func onJoin(s *State, ctx *keeper.Context) error {
	if _, ok := s.PlayerNotes[string(ctx.PlayerID)]; !ok {
		s.PlayerNotes[string(ctx.PlayerID)] = ""
	}
	return nil
}

func onLeave(s *State, ctx *keeper.Context) error {
	delete(s.PlayerNotes, string(ctx.PlayerID))
	return nil
}

func addToken(s *State, event keeper.Event, ctx *keeper.Context) error {
	var p AddTokenPayload
	if err := event.Payload.ToStruct(&p); err != nil {
		return fmt.Errorf("tabletop: add_token payload: %w", err)
	}
	if p.ID == "" {
		return fmt.Errorf("tabletop: add_token requires an id")
	}
	s.DisplayedTokens[p.ID] = p.Token
	return nil
}

func moveToken(s *State, event keeper.Event, ctx *keeper.Context) error {
	var p MoveTokenPayload
	if err := event.Payload.ToStruct(&p); err != nil {
		return fmt.Errorf("tabletop: move_token payload: %w", err)
	}
	token, ok := s.DisplayedTokens[p.ID]
	if !ok {
		return nil
	}
	token.X, token.Y = p.X, p.Y
	s.DisplayedTokens[p.ID] = token
	return nil
}

func deleteToken(s *State, event keeper.Event, ctx *keeper.Context) error {
	var p DeleteTokenPayload
	if err := event.Payload.ToStruct(&p); err != nil {
		return fmt.Errorf("tabletop: delete_token payload: %w", err)
	}
	delete(s.DisplayedTokens, p.ID)
	return nil
}

func clearTokens(s *State, event keeper.Event, ctx *keeper.Context) error {
	s.DisplayedTokens = make(map[string]TokenData)
	return nil
}

func changeBackground(s *State, event keeper.Event, ctx *keeper.Context) error {
	var p ChangeBackgroundPayload
	if err := event.Payload.ToStruct(&p); err != nil {
		return fmt.Errorf("tabletop: change_background payload: %w", err)
	}
	s.BackgroundImgPath = p.ImgPath
	return nil
}

func toggleGrid(s *State, event keeper.Event, ctx *keeper.Context) error {
	s.ShowGrid = !s.ShowGrid
	return nil
}

func addAreaTemplate(s *State, event keeper.Event, ctx *keeper.Context) error {
	var p AddAreaTemplatePayload
	if err := event.Payload.ToStruct(&p); err != nil {
		return fmt.Errorf("tabletop: add_area_template payload: %w", err)
	}
	id := p.ID
	if id == "" {
		return fmt.Errorf("tabletop: add_area_template requires an id")
	}
	s.AreaTemplates[id] = p.Template
	return nil
}

func moveAreaTemplate(s *State, event keeper.Event, ctx *keeper.Context) error {
	var p MoveAreaTemplatePayload
	if err := event.Payload.ToStruct(&p); err != nil {
		return fmt.Errorf("tabletop: move_area_template payload: %w", err)
	}
	t, ok := s.AreaTemplates[p.ID]
	if !ok {
		return nil
	}
	t.X, t.Y = p.X, p.Y
	s.AreaTemplates[p.ID] = t
	return nil
}

func deleteAreaTemplate(s *State, event keeper.Event, ctx *keeper.Context) error {
	var p DeleteAreaTemplatePayload
	if err := event.Payload.ToStruct(&p); err != nil {
		return fmt.Errorf("tabletop: delete_area_template payload: %w", err)
	}
	delete(s.AreaTemplates, p.ID)
	return nil
}

func clearAreaTemplates(s *State, event keeper.Event, ctx *keeper.Context) error {
	s.AreaTemplates = make(map[string]AreaTemplate)
	return nil
}

func setNote(s *State, event keeper.Event, ctx *keeper.Context) error {
	var p SetNotePayload
	if err := event.Payload.ToStruct(&p); err != nil {
		return fmt.Errorf("tabletop: set_note payload: %w", err)
	}
	s.PlayerNotes[string(ctx.PlayerID)] = p.Text
	return nil
}
