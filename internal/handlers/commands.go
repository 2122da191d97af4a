package handlers

import (
	"context"
	"errors"
	"fmt"

	"roulette/internal/roster"
	"roulette/internal/services"
	"roulette/internal/session"
)

var errBadCommand = errors.New("bad command")

// command is one user action on a live session. The websocket channel sends
// it as JSON; the HTTP routes build it from the path and body.
type command struct {
	Type      string `json:"type"`
	LocalKey  string `json:"localKey,omitempty"`
	Name      string `json:"name,omitempty"`
	Emoji     string `json:"emoji,omitempty"`
	Direction string `json:"direction,omitempty"`
	Enabled   *bool  `json:"enabled,omitempty"`
}

// apply runs cmd against the session controller and reports whether the
// session changed. Only saves and malformed commands return errors.
func apply(ctx context.Context, ls *services.LiveSession, cmd command) (bool, error) {
	c := ls.Controller
	switch cmd.Type {
	case "add":
		return c.AddParticipant(cmd.Name), nil
	case "remove":
		return c.RemoveParticipant(cmd.LocalKey), nil
	case "rename":
		return c.RenameParticipant(cmd.LocalKey, cmd.Name), nil
	case "emoji":
		return c.SetEmoji(cmd.LocalKey, cmd.Emoji), nil
	case "toggleHit":
		return c.ToggleHit(cmd.LocalKey), nil
	case "move":
		dir := roster.Direction(cmd.Direction)
		if dir != roster.Up && dir != roster.Down {
			return false, fmt.Errorf("%w: direction must be up or down", errBadCommand)
		}
		return c.MoveParticipant(cmd.LocalKey, dir), nil
	case "spin":
		return c.Spin(), nil
	case "confirm":
		_, ok := c.Confirm()
		return ok, nil
	case "retry":
		return c.Retry(), nil
	case "reset":
		c.ResetSelection()
		return true, nil
	case "autosave":
		if cmd.Enabled == nil {
			return false, fmt.Errorf("%w: enabled is required", errBadCommand)
		}
		before := c.State().AutoSaveEnabled
		c.SetAutoSave(*cmd.Enabled)
		return before != *cmd.Enabled, nil
	case "save":
		out := c.Save(ctx, session.SaveOptions{ShowNavigation: true})
		return out.Err == nil, out.Err
	default:
		return false, fmt.Errorf("%w: unknown type %q", errBadCommand, cmd.Type)
	}
}
