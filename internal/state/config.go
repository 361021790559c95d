package state

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"

	"github.com/shadeworks/shaded/helpers"
	"github.com/shadeworks/shaded/internal/hardware/servo"
	tele_config "github.com/shadeworks/shaded/internal/tele/config"
	"github.com/shadeworks/shaded/log2"
)

const (
	DefaultNetworkTimeout = 30 * time.Second
	DefaultPollTimeout    = 5 * time.Second
	DefaultPacingDelay    = 1 * time.Second
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	Device struct {
		Serial string `hcl:"serial"`
		Secret string `hcl:"secret"`
	} `hcl:"device"`

	Server struct {
		BaseURL           string `hcl:"base_url"`
		NetworkTimeoutSec int    `hcl:"network_timeout_sec"`
		PollTimeoutSec    int    `hcl:"poll_timeout_sec"`
		PacingDelayMs     int    `hcl:"pacing_delay_ms"`
	} `hcl:"server"`

	Hardware struct {
		Servo servo.Config `hcl:"servo"`
	} `hcl:"hardware"`

	Persist struct {
		Root string `hcl:"root"`
	} `hcl:"persist"`

	Tele tele_config.Config `hcl:"tele"`

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (c *Config) NetworkTimeout() time.Duration {
	return helpers.IntSecondDefault(c.Server.NetworkTimeoutSec, DefaultNetworkTimeout)
}

func (c *Config) PollTimeout() time.Duration {
	return helpers.IntSecondDefault(c.Server.PollTimeoutSec, DefaultPollTimeout)
}

func (c *Config) PacingDelay() time.Duration {
	return helpers.IntMillisecondDefault(c.Server.PacingDelayMs, DefaultPacingDelay)
}

// Validate checks the parts without which the agent cannot start at all.
// Defaults for optional values are applied by the getters above.
func (c *Config) Validate() error {
	errs := make([]error, 0, 4)
	if c.Device.Serial == "" {
		errs = append(errs, errors.NotValidf("config: device.serial is required"))
	}
	if len(c.Device.Secret) < 8 {
		errs = append(errs, errors.NotValidf("config: device.secret must be >= 8 bytes"))
	}
	if c.Server.BaseURL == "" {
		errs = append(errs, errors.NotValidf("config: server.base_url is required"))
	}
	if c.Hardware.Servo.Enable && c.Hardware.Servo.PinChip == "" {
		errs = append(errs, errors.NotValidf("config: hardware.servo.pin_chip is required when servo is enabled"))
	}
	return helpers.FoldErrors(errs)
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		log.Fatalf("config duplicate source=%s", source.Name)
	} else {
		log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	}
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
			return
		}
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, string(bs))
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		log.Fatal("code error [Must]ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	if err := helpers.FoldErrors(errs); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
