package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	v1 "github.com/tejasgit/nylo/internal/api/v1"
	"github.com/tejasgit/nylo/internal/delivery"
	"github.com/tejasgit/nylo/internal/identity"
)

// drainTimeout bounds the final send of every command that emits events.
const drainTimeout = 30 * time.Second

const httpTimeout = 10 * time.Second

// agent is the identity manager and delivery pipeline for one invocation.
type agent struct {
	manager  *identity.Manager
	pipeline *delivery.Pipeline
	cfg      delivery.Config
}

func (g *Globals) newAgent() (*agent, error) {
	cfg, err := delivery.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if g.Endpoint != "" {
		cfg.Endpoint = g.Endpoint
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(g.StateFile), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	domain := strings.ToLower(g.Domain)

	// One jar backs the cookie tier and every request to the endpoint.
	jar, err := identity.NewCookieJar()
	if err != nil {
		return nil, err
	}
	tiers, err := identity.DefaultTiers(domain, g.StateFile, jar)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: httpTimeout, Jar: jar}

	pipeline := delivery.NewPipeline(cfg, delivery.NewHTTPTransport(cfg.Endpoint, cfg.APIKey, client))
	codec := identity.TokenCodec{}
	if g.SigningKey != "" {
		codec.SigningKey = []byte(g.SigningKey)
	}
	manager := identity.NewManager(identity.Config{
		Domain:     domain,
		CustomerID: v1.CustomerID(g.CustomerID),
		Tiers:      tiers,
		Codec:      codec,
	}, identity.NewHTTPVerifier(cfg.Endpoint, client), pipeline)

	return &agent{manager: manager, pipeline: pipeline, cfg: cfg}, nil
}

// drain sends whatever the command queued.
func (a *agent) drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := a.pipeline.Drain(ctx); err != nil {
		stats := a.pipeline.Stats()
		return fmt.Errorf("delivery incomplete (%d queued, %d batches awaiting retry): %w",
			stats.Queued, stats.PendingRetry, err)
	}
	return nil
}

func writeJSON(g *Globals, v interface{}) error {
	enc := json.NewEncoder(g.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type IdentifyCmd struct{}

func (c *IdentifyCmd) Run(g *Globals) error {
	a, err := g.newAgent()
	if err != nil {
		return err
	}
	id := a.manager.Identifier()
	issuedAt, _ := id.IssuedAt()
	return writeJSON(g, map[string]interface{}{
		"waiTag":    id.String(),
		"sessionId": a.manager.Session().ID,
		"domain":    strings.ToLower(g.Domain),
		"issuedAt":  issuedAt,
	})
}

type SendCmd struct {
	EventType string `name:"event-type" help:"Event type for lines that do not set one." default:"page_view"`
}

type sendSummary struct {
	Queued  int `json:"queued"`
	Invalid int `json:"invalid"`
}

func (c *SendCmd) Run(g *Globals) error {
	a, err := g.newAgent()
	if err != nil {
		return err
	}

	var summary sendSummary
	scanner := bufio.NewScanner(g.In)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var evt v1.Event
		if err := json.Unmarshal([]byte(text), &evt); err != nil {
			slog.Warn("Skipping malformed event", "line", line, "error", err)
			summary.Invalid++
			continue
		}
		if evt.EventType == "" {
			evt.EventType = c.EventType
		}
		a.manager.Stamp(&evt)
		if err := evt.Validate(); err != nil {
			slog.Warn("Skipping invalid event", "line", line, "error", err)
			summary.Invalid++
			continue
		}
		a.pipeline.Enqueue(evt)
		summary.Queued++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}

	if err := a.drain(); err != nil {
		return err
	}
	return writeJSON(g, summary)
}

type HandoffCmd struct {
	URL string `arg:"" help:"Link to decorate."`
}

func (c *HandoffCmd) Run(g *Globals) error {
	a, err := g.newAgent()
	if err != nil {
		return err
	}
	decorated, err := a.manager.DecorateURL(c.URL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(g.Out, decorated)
	return err
}

type AdoptCmd struct {
	URL      string `arg:"" help:"Landing URL that may carry a handoff token."`
	Referrer string `help:"Page that linked here."`
}

func (c *AdoptCmd) Run(g *Globals) error {
	a, err := g.newAgent()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	result, consumeErr := a.manager.ConsumeURL(ctx, c.URL, c.Referrer)

	out := map[string]interface{}{
		"waiTag":   result.Identifier.String(),
		"adopted":  result.Adopted,
		"cleanUrl": result.CleanURL,
	}
	if consumeErr != nil {
		out["error"] = consumeErr.Error()
	}

	if result.Adopted {
		if err := a.drain(); err != nil {
			return err
		}
	}
	return writeJSON(g, out)
}
