// Command charge-limiter keeps an EV charger's commanded current at the
// edge of the solar supply's curtailment signal and publishes limiter
// events to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/charge-limiter/internal/gpio"
	"github.com/sweeney/charge-limiter/internal/logic"
	"github.com/sweeney/charge-limiter/internal/mqtt"
	"github.com/sweeney/charge-limiter/internal/status"
	"github.com/sweeney/charge-limiter/internal/web"
)

func main() {
	poll := flag.Duration("poll", 50*time.Millisecond, "Curtailment polling interval")
	broker := flag.String("broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	pinCurtail := flag.Int("pin-curtail", gpio.DefaultPinCurtail, "BCM pin number for the curtailment input")
	pinPWM := flag.Int("pin-pwm", gpio.DefaultPinPWM, "BCM pin number for the charge-current PWM output")
	pinInverter := flag.Int("pin-inverter", gpio.DefaultPinInverter, "BCM pin number for the inverter enable output")
	printState := flag.Bool("print-state", false, "Print current curtailment state and exit")
	httpAddr := flag.String("http", ":80", "HTTP status address (empty to disable)")

	flag.Parse()

	if err := run(*poll, *broker, *heartbeat, *pinCurtail, *pinPWM, *pinInverter, *printState, *httpAddr); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(poll time.Duration, broker string, heartbeat time.Duration, pinCurtail, pinPWM, pinInverter int, printState bool, httpAddr string) error {
	cfg := logic.DefaultConfig()
	ctl := logic.NewController(cfg, time.Now())

	// Initialize the curtailment input. Falling edges latch a flag on the
	// controller; the run loop drains it on its next iteration.
	curtail, err := gpio.NewRealCurtailment(pinCurtail, ctl.SignalCurtailment)
	if err != nil {
		return fmt.Errorf("init curtailment input: %w", err)
	}
	defer curtail.Close()

	// Print state mode
	if printState {
		active, err := curtail.Level()
		if err != nil {
			return fmt.Errorf("read curtailment: %w", err)
		}
		fmt.Printf("curtailment: %s\n", levelString(active))
		return nil
	}

	// Initialize the outputs; the inverter enable line goes high here.
	charger, err := gpio.NewRealCharger(pinPWM, pinInverter)
	if err != nil {
		return fmt.Errorf("init charger outputs: %w", err)
	}
	defer charger.Close()

	// Initialize MQTT
	publisher, err := mqtt.NewRealPublisher(broker)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:      poll.Milliseconds(),
		HeartbeatMs: heartbeat.Milliseconds(),
		Broker:      broker,
		HTTPAddr:    httpAddr,
		MinDuty:     cfg.MinDuty,
		MaxDuty:     cfg.MaxDuty,
	})

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if httpAddr != "" {
		srv := web.New(httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", httpAddr)
	}

	log.Printf("started: poll=%v broker=%s heartbeat=%v duty=[%d,%d]",
		poll, broker, heartbeat, cfg.MinDuty, cfg.MaxDuty)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(ctl, cfg, curtail, charger, publisher, publisher, tracker, heartbeat, time.Now, ticker.C, sigCh)
}

func runLoop(ctl *logic.Controller, cfg logic.Config, curtail gpio.Curtailment, charger gpio.Charger, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			active, err := curtail.Level()
			if err != nil {
				log.Printf("curtailment read error: %v", err)
				continue
			}

			cmd, admitted := ctl.Step(t, active)
			if !admitted {
				// Monitor-only iteration; the tick gate paces the rest.
				continue
			}

			if err := charger.SetDuty(cmd.Duty); err != nil {
				log.Printf("pwm write error: %v", err)
				// Don't crash on write failure
			}

			if cmd.InverterTripped {
				log.Printf("inverter disabled: curtailment absent for %v", cmd.CurtailmentAge)
				if err := charger.SetInverter(false); err != nil {
					log.Printf("inverter write error: %v", err)
				}
			}

			for _, event := range eventsFor(cmd, cfg) {
				log.Printf("event: %s (duty=%d age=%v)", event.Type, event.Duty, event.CurtailmentAge)
				if err := publisher.Publish(event); err != nil {
					log.Printf("publish error: %v", err)
				}
			}

			// Check for heartbeat
			if hbData := ctl.CheckHeartbeat(t, heartbeat); hbData != nil {
				log.Printf("heartbeat: uptime=%v duty=%d step_ups=%d step_downs=%d trips=%d",
					hbData.Uptime, hbData.Duty, hbData.Counts.StepUps, hbData.Counts.StepDowns, hbData.Counts.InverterTrips)

				hbEvent := mqtt.SystemEvent{
					Timestamp: hbData.Timestamp,
					Event:     "HEARTBEAT",
				}
				if tracker != nil {
					if mqttStatus != nil {
						tracker.SetMQTTConnected(mqttStatus.IsConnected())
					}
					tracker.Update(cmd.Duty, cfg.ApproxAmps(cmd.Duty), active, cmd.CurtailmentAge, cmd.InverterOn, ctl.CountsSnapshot())
					snap := tracker.Snapshot()
					hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}

			// Update status tracker for HTTP consumers
			if tracker != nil {
				tracker.Update(cmd.Duty, cfg.ApproxAmps(cmd.Duty), active, cmd.CurtailmentAge, cmd.InverterOn, ctl.CountsSnapshot())
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
			}
		}
	}
}

// eventsFor derives the publishable events from an admitted tick. Steps
// absorbed by the clamp produce no event; the trip always does.
func eventsFor(cmd logic.Command, cfg logic.Config) []logic.Event {
	base := logic.Event{
		Timestamp:      cmd.Time,
		Duty:           cmd.Duty,
		Amps:           cfg.ApproxAmps(cmd.Duty),
		CurtailmentAge: cmd.CurtailmentAge,
	}

	var events []logic.Event
	if cmd.DutyChanged {
		switch cmd.Action {
		case logic.ActionStepUp:
			e := base
			e.Type = logic.EventStepUp
			events = append(events, e)
		case logic.ActionStepDown:
			e := base
			e.Type = logic.EventStepDown
			events = append(events, e)
		}
	}
	if cmd.InverterTripped {
		e := base
		e.Type = logic.EventInverterOff
		events = append(events, e)
	}
	return events
}

func levelString(active bool) string {
	if active {
		return "ACTIVE"
	}
	return "IDLE"
}
