package ethernet

import (
	"net"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/viam-modules/w5500/pins"
	"github.com/viam-modules/w5500/w5500"
)

const (
	defaultPollInterval = 10 * time.Millisecond
	defaultFrameBacklog = 32
)

// defaultSourceMAC is a locally administered address used for frames this component builds.
var defaultSourceMAC = [6]byte{0x02, 0x00, 0x00, 0x00, 0x55, 0x00}

// Config describes how the chip is wired.
type Config struct {
	SPIBus      string `json:"spi_bus"`
	ChipSelect  string `json:"chip_select"`
	SPIBaudRate int    `json:"spi_baud_rate,omitempty"`

	GPIOChip      string `json:"gpio_chip,omitempty"`
	ResetPin      *int   `json:"reset_pin,omitempty"`
	InterruptPin  *int   `json:"interrupt_pin,omitempty"`
	ChipSelectPin *int   `json:"cs_pin,omitempty"`

	PollIntervalMs   int `json:"poll_interval_ms,omitempty"`
	CommandTimeoutMs int `json:"command_timeout_ms,omitempty"`
	CommandMaxPolls  int `json:"command_max_polls,omitempty"`

	MTU          int    `json:"mtu,omitempty"`
	FrameBacklog int    `json:"frame_backlog,omitempty"`
	SourceMAC    string `json:"source_mac,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) ([]string, []string, error) {
	if conf.SPIBus == "" {
		return nil, nil, goutils.NewConfigValidationFieldRequiredError(path, "spi_bus")
	}
	if conf.ChipSelect == "" {
		return nil, nil, goutils.NewConfigValidationFieldRequiredError(path, "chip_select")
	}
	if conf.SPIBaudRate < 0 {
		return nil, nil, goutils.NewConfigValidationError(path, errors.New("spi_baud_rate must not be negative"))
	}
	for name, pin := range map[string]*int{
		"reset_pin":     conf.ResetPin,
		"interrupt_pin": conf.InterruptPin,
		"cs_pin":        conf.ChipSelectPin,
	} {
		if pin != nil && *pin < 0 {
			return nil, nil, goutils.NewConfigValidationError(path, errors.Errorf("%s must not be negative", name))
		}
	}
	if conf.PollIntervalMs < 0 || conf.CommandTimeoutMs < 0 || conf.CommandMaxPolls < 0 {
		return nil, nil, goutils.NewConfigValidationError(path,
			errors.New("poll_interval_ms, command_timeout_ms and command_max_polls must not be negative"))
	}
	if conf.MTU < 0 || conf.MTU > 0xFFFF {
		return nil, nil, goutils.NewConfigValidationError(path, errors.Errorf("mtu %d out of range", conf.MTU))
	}
	if conf.FrameBacklog < 0 {
		return nil, nil, goutils.NewConfigValidationError(path, errors.New("frame_backlog must not be negative"))
	}
	if _, err := ParseMAC(conf.SourceMAC); err != nil {
		return nil, nil, goutils.NewConfigValidationError(path, err)
	}
	return nil, nil, nil
}

func (conf *Config) gpioChip() string {
	if conf.GPIOChip == "" {
		return pins.DefaultGPIOChip
	}
	return conf.GPIOChip
}

func (conf *Config) pollInterval() time.Duration {
	if conf.PollIntervalMs == 0 {
		return defaultPollInterval
	}
	return time.Duration(conf.PollIntervalMs) * time.Millisecond
}

func (conf *Config) pollPolicy() w5500.PollPolicy {
	return w5500.PollPolicy{
		MaxPolls: conf.CommandMaxPolls,
		Timeout:  time.Duration(conf.CommandTimeoutMs) * time.Millisecond,
	}
}

func (conf *Config) rawModeOptions() w5500.RawModeOptions {
	return w5500.RawModeOptions{MTU: uint16(conf.MTU)}
}

func backlogOrDefault(n int) int {
	if n == 0 {
		return defaultFrameBacklog
	}
	return n
}

// ParseMAC parses a colon separated hardware address. An empty string yields the default source
// address.
func ParseMAC(s string) ([6]byte, error) {
	if s == "" {
		return defaultSourceMAC, nil
	}
	hw, err := net.ParseMAC(s)
	if err != nil {
		return [6]byte{}, errors.Wrap(err, "source_mac")
	}
	if len(hw) != 6 {
		return [6]byte{}, errors.Errorf("source_mac %q is not a 48-bit address", s)
	}
	return [6]byte(hw), nil
}
