// Manual servo console for bench testing without a control server.
package main

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/juju/errors"

	"github.com/shadeworks/shaded/helpers/cli"
	"github.com/shadeworks/shaded/internal/hardware/servo"
	"github.com/shadeworks/shaded/internal/state"
	"github.com/shadeworks/shaded/log2"
)

const usage = `syntax: commands separated by whitespace
- open     move to fully open (180)
- close    move to fully closed (0)
- aN       move to angle N degrees (0..180)
- sN       pause N milliseconds
- log=yes|no  enable|disable debug logging
- help     this text
`

var log = log2.NewStderr(log2.LDebug)

func main() {
	cmdline := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	flagConfig := cmdline.String("config", "", "hardware config, empty for mock actuator")
	cmdline.Parse(os.Args[1:])

	log.SetFlags(log2.LInteractiveFlags)

	var actuator servo.Actuator
	if *flagConfig != "" {
		config := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
		s, err := servo.NewServo(config.Hardware.Servo, log)
		if err != nil {
			log.Fatal(errors.ErrorStack(err))
		}
		actuator = s
	} else {
		log.Infof("no -config, using mock actuator")
		actuator = servo.NewMock(log)
	}

	cli.MainLoop("shaded-cli", newExecutor(actuator), completer)
}

func newExecutor(actuator servo.Actuator) func(string) {
	return func(line string) {
		for _, word := range strings.Split(line, " ") {
			word = strings.TrimSpace(word)
			if word == "" {
				continue
			}
			if err := execWord(actuator, word); err != nil {
				log.Errorf(errors.ErrorStack(err))
				return
			}
		}
	}
}

func execWord(actuator servo.Actuator, word string) error {
	switch {
	case word == "help":
		log.Infof(usage)
		return nil
	case word == "log=yes":
		log.SetLevel(log2.LDebug)
		return nil
	case word == "log=no":
		log.SetLevel(log2.LInfo)
		return nil
	case word == "open":
		return actuator.SetAngle(servo.AngleOpen)
	case word == "close":
		return actuator.SetAngle(servo.AngleClosed)
	case strings.HasPrefix(word, "a"):
		deg, err := strconv.Atoi(word[1:])
		if err != nil {
			return errors.NotValidf("word=%s", word)
		}
		return actuator.SetAngle(deg)
	case strings.HasPrefix(word, "s"):
		ms, err := strconv.Atoi(word[1:])
		if err != nil {
			return errors.NotValidf("word=%s", word)
		}
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return nil
	}
	return errors.NotValidf("word=%s", word)
}

func completer(d prompt.Document) []prompt.Suggest {
	suggests := []prompt.Suggest{
		prompt.Suggest{Text: "open", Description: "move to fully open (180)"},
		prompt.Suggest{Text: "close", Description: "move to fully closed (0)"},
		prompt.Suggest{Text: "aN", Description: "move to angle N degrees"},
		prompt.Suggest{Text: "sN", Description: "pause for N ms"},
		prompt.Suggest{Text: "help", Description: "command help"},
	}
	return prompt.FilterFuzzy(suggests, d.GetWordBeforeCursor(), true)
}
