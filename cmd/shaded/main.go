// Sunshade device agent: authenticates against the control server,
// binds a command channel and long-polls for open/close commands.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"

	"github.com/shadeworks/shaded/internal/agent"
	"github.com/shadeworks/shaded/internal/api"
	"github.com/shadeworks/shaded/internal/hardware/servo"
	"github.com/shadeworks/shaded/internal/state"
	"github.com/shadeworks/shaded/internal/state/persist"
	"github.com/shadeworks/shaded/internal/tele"
	"github.com/shadeworks/shaded/log2"
)

var log = log2.NewStderr(log2.LDebug)

func main() {
	flagConfig := flag.String("config", "shaded.hcl", "")
	flag.Parse()

	if sdnotify("start") {
		// under systemd, journal adds timestamps
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}
	log.Infof("hello")

	a := alive.NewAlive()
	config := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
	log.Debugf("config=%+v", config)

	ctx := context.Background()

	var teler tele.Teler = tele.Noop{}
	if config.Tele.Enable {
		if config.Tele.ClientID == "" {
			config.Tele.ClientID = config.Device.Serial
		}
		teler = tele.New()
	}
	if err := teler.Init(ctx, log.Clone(log2.LInfo), config.Tele); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	defer teler.Close()
	log.SetErrorFunc(teler.Error)

	var actuator servo.Actuator
	if config.Hardware.Servo.Enable {
		s, err := servo.NewServo(config.Hardware.Servo, log)
		if err != nil {
			log.Fatal(errors.ErrorStack(errors.Annotate(err, "servo init")))
		}
		actuator = s
	} else {
		log.Infof("servo disabled, using mock actuator")
		actuator = servo.NewMock(log)
	}

	position := new(agent.Position)
	pers := new(persist.Persist)
	persistEnabled := config.Persist.Root != ""
	if err := pers.Init("position", position, config.Persist.Root, persistEnabled, log); err != nil {
		log.Fatal(errors.ErrorStack(errors.Annotate(err, "persist init")))
	}
	if err := pers.Load(); err != nil {
		log.Errorf("position load err=%v", err)
	} else if persistEnabled {
		// restore last known position after restart
		if err := actuator.SetAngle(position.Angle()); err != nil {
			log.Errorf("position restore angle=%d err=%v", position.Angle(), err)
		}
	}

	client, err := api.NewClient(api.Options{
		BaseURL:        config.Server.BaseURL,
		Serial:         config.Device.Serial,
		Secret:         []byte(config.Device.Secret),
		NetworkTimeout: config.NetworkTimeout(),
		PollTimeout:    config.PollTimeout(),
		Log:            log,
	})
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}

	sup, err := agent.NewSupervisor(agent.Options{
		API:         client,
		Actuator:    actuator,
		Log:         log,
		Alive:       a,
		Tele:        teler,
		PacingDelay: config.PacingDelay(),
		OnAngle: func(deg int) {
			position.SetAngle(deg)
			if err := pers.Store(); err != nil {
				log.Errorf("position store angle=%d err=%v", deg, err)
			}
		},
	})
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signalCh
		log.Infof("signal=%v", sig)
		a.Stop()
	}()

	sdnotify(daemon.SdNotifyReady)
	log.Infof("serial=%s server=%s", config.Device.Serial, config.Server.BaseURL)
	if err := sup.Run(ctx); err != nil {
		teler.Close()
		log.Fatal(errors.ErrorStack(err))
	}
	log.Infof("goodbye")
}

func sdnotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Fatal("sdnotify: ", errors.ErrorStack(err))
	}
	return ok
}
