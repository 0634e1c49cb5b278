package raidtimer_client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/raidtimer/go/clients"
	"github.com/mcdev12/raidtimer/go/internal/events"
)

// ErrVersionMismatch is returned by CheckVersion when the server speaks a
// different protocol.
var ErrVersionMismatch = errors.New("server protocol version mismatch")

type RaidTimerClient struct {
	*clients.BaseClient
	clock        clockwork.Clock
	retryBackoff time.Duration
}

// NewRaidTimerClient creates a client. The HTTP timeout must outlast the
// server's long-poll budget.
func NewRaidTimerClient(baseURL string, longPollTimeout time.Duration) *RaidTimerClient {
	client := &RaidTimerClient{
		BaseClient:   clients.NewBaseClient(baseURL),
		clock:        clockwork.NewRealClock(),
		retryBackoff: time.Second,
	}
	client.SetTimeout(longPollTimeout + 15*time.Second)
	return client
}

// CheckVersion fails unless the server reports the expected protocol version.
func (c *RaidTimerClient) CheckVersion(ctx context.Context) (events.ServerInfo, error) {
	var info events.ServerInfo
	if err := c.getJSON(ctx, InfoEndpoint, &info); err != nil {
		return info, fmt.Errorf("failed to get server info: %w", err)
	}
	if info.Version != ProtocolVersion {
		return info, fmt.Errorf("%w: server %d, client %d", ErrVersionMismatch, info.Version, ProtocolVersion)
	}
	return info, nil
}

// GetState returns the group's current state without waiting.
func (c *RaidTimerClient) GetState(ctx context.Context, groupID string) (events.GroupState, error) {
	var state events.GroupState
	if err := c.getJSON(ctx, groupPath(groupID, ""), &state); err != nil {
		return state, fmt.Errorf("failed to get state of %s: %w", groupID, err)
	}
	return state, nil
}

// WaitForChange long-polls until the group moves past updateID or the server
// budget runs out. In the latter case the returned state still has updateID.
func (c *RaidTimerClient) WaitForChange(ctx context.Context, groupID string, updateID uint64) (events.GroupState, error) {
	body := map[string]any{
		"update_id": updateID,
		"time":      c.clock.Now().UTC().Format(events.TimeLayout),
	}
	var state events.GroupState
	if err := c.postJSON(ctx, groupPath(groupID, ""), body, &state); err != nil {
		return state, fmt.Errorf("failed to wait on %s: %w", groupID, err)
	}
	return state, nil
}

// Watch calls fn with the current state and then once per change until ctx
// is done or fn returns an error. Transport errors are retried.
func (c *RaidTimerClient) Watch(ctx context.Context, groupID string, fn func(events.GroupState) error) error {
	var (
		last    events.GroupState
		haveAny bool
	)
	for {
		var (
			state events.GroupState
			err   error
		)
		if haveAny {
			state, err = c.WaitForChange(ctx, groupID, last.UpdateID)
		} else {
			state, err = c.GetState(ctx, groupID)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			var apiErr *clients.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
				return err
			}
			log.Warn().Err(err).Str("group_id", groupID).Dur("backoff", c.retryBackoff).Msg("watch request failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.clock.After(c.retryBackoff):
			}
			continue
		}

		if haveAny && state.UpdateID == last.UpdateID {
			continue
		}
		last, haveAny = state, true
		if err := fn(state); err != nil {
			return err
		}
	}
}

func (c *RaidTimerClient) Start(ctx context.Context, groupID string, at time.Time) (uint64, error) {
	return c.mutate(ctx, groupID, StartAction, map[string]any{"time": formatTime(at)})
}

func (c *RaidTimerClient) Stop(ctx context.Context, groupID string, at time.Time) (uint64, error) {
	return c.mutate(ctx, groupID, StopAction, map[string]any{"time": formatTime(at)})
}

func (c *RaidTimerClient) Prepare(ctx context.Context, groupID string) (uint64, error) {
	return c.mutate(ctx, groupID, PrepareAction, nil)
}

func (c *RaidTimerClient) Reset(ctx context.Context, groupID string) (uint64, error) {
	return c.mutate(ctx, groupID, ResetAction, nil)
}

func (c *RaidTimerClient) Segment(ctx context.Context, groupID string, index int, at time.Time, name string) (uint64, error) {
	return c.mutate(ctx, groupID, SegmentAction, map[string]any{
		"segment_num": index,
		"time":        formatTime(at),
		"name":        name,
	})
}

func (c *RaidTimerClient) ClearSegments(ctx context.Context, groupID string) (uint64, error) {
	return c.mutate(ctx, groupID, ClearSegmentsAction, nil)
}

func (c *RaidTimerClient) mutate(ctx context.Context, groupID, action string, body any) (uint64, error) {
	var result events.MutationResult
	if err := c.postJSON(ctx, groupPath(groupID, action), body, &result); err != nil {
		return 0, fmt.Errorf("failed to %s %s: %w", action, groupID, err)
	}
	if result.Status != "success" {
		return 0, fmt.Errorf("failed to %s %s: status %q", action, groupID, result.Status)
	}
	return result.UpdateID, nil
}

func (c *RaidTimerClient) getJSON(ctx context.Context, endpoint string, out any) error {
	body, err := c.Get(ctx, endpoint)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	return nil
}

func (c *RaidTimerClient) postJSON(ctx context.Context, endpoint string, in, out any) error {
	var payload bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&payload).Encode(in); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}
	body, err := c.Post(ctx, endpoint, &payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	return nil
}

func groupPath(groupID, action string) string {
	path := GroupsEndpoint + url.PathEscape(groupID)
	if action != "" {
		path += "/" + action
	}
	return path
}

func formatTime(t time.Time) string {
	return t.UTC().Format(events.TimeLayout)
}
