package main

import (
	"time"

	"github.com/openwot/webthing-core/internal/infrastructure/config"
	"github.com/openwot/webthing-core/internal/infrastructure/logging"
	"github.com/openwot/webthing-core/internal/schema"
	"github.com/openwot/webthing-core/internal/thing"
)

// overheatThreshold is the brightness level above which the lamp reports
// an overheated event.
const overheatThreshold = 90

// lampThing wraps the thing aggregate for the simulated lamp this
// gateway exposes. The lamp mirrors the reference WoT example device:
// on/off and brightness properties, a fade action, and an overheated
// event.
type lampThing struct {
	*thing.Thing
}

// newLampThing assembles the lamp from configuration. Registration order
// matters: it fixes the order in which actions and events appear in the
// thing description.
func newLampThing(cfg config.ThingConfig, log *logging.Logger) *lampThing {
	types := cfg.Types
	if len(types) == 0 {
		types = []string{"OnOffSwitch", "Light"}
	}
	description := cfg.Description
	if description == "" {
		description = "A web connected lamp"
	}

	t := thing.New(cfg.ID, cfg.Title, types, description)
	t.SetLogger(log)
	t.SetValidator(schema.NewValidator())
	if cfg.UIHref != "" {
		t.SetUIHref(cfg.UIHref)
	}

	t.AddProperty(thing.NewBaseProperty(t, "on", thing.Metadata{
		"@type":       "OnOffProperty",
		"title":       "On/Off",
		"type":        "boolean",
		"description": "Whether the lamp is turned on",
	}, true))

	t.AddProperty(thing.NewBaseProperty(t, "brightness", thing.Metadata{
		"@type":       "BrightnessProperty",
		"title":       "Brightness",
		"type":        "integer",
		"description": "The level of light from 0-100",
		"minimum":     0,
		"maximum":     100,
		"unit":        "percent",
	}, 50))

	lamp := &lampThing{Thing: t}

	t.AddAvailableAction("fade", thing.Metadata{
		"title":       "Fade",
		"description": "Fade the lamp to a given level",
		"input": map[string]any{
			"type":     "object",
			"required": []any{"brightness", "duration"},
			"properties": map[string]any{
				"brightness": map[string]any{
					"type":    "integer",
					"minimum": 0,
					"maximum": 100,
					"unit":    "percent",
				},
				"duration": map[string]any{
					"type":    "integer",
					"minimum": 1,
					"unit":    "milliseconds",
				},
			},
		},
	}, lamp.newFadeAction)

	t.AddAvailableEvent("overheated", thing.Metadata{
		"description": "The lamp has exceeded its safe operating temperature",
		"type":        "number",
		"unit":        "degree celsius",
	})

	return lamp
}

// newFadeAction builds one fade invocation. The input has already been
// validated against the action's schema, so the runner can assume the
// required keys are present and in range.
func (l *lampThing) newFadeAction(t *thing.Thing, input any) thing.Action {
	a := thing.NewBaseAction(t, "fade", input)
	cancelled := make(chan struct{})

	a.SetOnCancel(func() {
		close(cancelled)
	})

	a.SetRunner(func() error {
		brightness, duration := fadeParams(input)

		select {
		case <-time.After(duration):
		case <-cancelled:
			return nil
		}

		if err := t.SetProperty("brightness", brightness); err != nil {
			return err
		}

		if brightness > overheatThreshold {
			t.AddEvent(thing.NewBaseEvent(t, "overheated", 102))
		}
		return nil
	})

	return a
}

// fadeParams extracts the target brightness and fade duration from the
// validated action input. JSON numbers decode as float64.
func fadeParams(input any) (int, time.Duration) {
	params, ok := input.(map[string]any)
	if !ok {
		return 0, 0
	}

	brightness := 0
	if v, ok := params["brightness"].(float64); ok {
		brightness = int(v)
	}
	duration := time.Duration(0)
	if v, ok := params["duration"].(float64); ok {
		duration = time.Duration(v) * time.Millisecond
	}
	return brightness, duration
}
