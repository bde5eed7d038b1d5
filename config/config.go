// Package config holds the server options. Options come from an optional YAML
// file and are overridden by command line flags; Validate replaces every out
// of range value by its default.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the set of server options.
type Config struct {
	SampleRate        int           `yaml:"sample_rate"`
	Frames            int           `yaml:"frames"` // samples per audio callback
	WavetableSize     int           `yaml:"wavetable_size"`
	FPS               int           `yaml:"fps"` // frames expected from the client per second
	Port              int           `yaml:"port"`
	Iface             string        `yaml:"iface"`
	RxBufferSize      int           `yaml:"rx_buffer_size"`
	MaxPacketSize     int           `yaml:"max_packet_size"`
	FramesQueueSize   int           `yaml:"frames_queue_size"`
	CommandsQueueSize int           `yaml:"commands_queue_size"`
	OutputChannels    int           `yaml:"output_channels"`
	Device            int           `yaml:"device"`
	NoiseAmount       float64       `yaml:"noise_amount"`
	ActivityCutoff    float64       `yaml:"activity_cutoff"`
	HoldTicks         int           `yaml:"hold_ticks"`
	PauseTimeout      time.Duration `yaml:"pause_timeout"`
	OSCOut            bool          `yaml:"osc_out"`
	OSCAddr           string        `yaml:"osc_addr"`
	OSCPort           int           `yaml:"osc_port"`
	GrainsDir         string        `yaml:"grains_dir"`
	MIDIInput         string        `yaml:"midi_input"`
	GainCC            int           `yaml:"gain_cc"`
	Record            string        `yaml:"record"`
	StatsInterval     time.Duration `yaml:"stats_interval"`
	LogLevel          string        `yaml:"log_level"`
}

// Default returns the default options.
func Default() Config {
	return Config{
		SampleRate:        44100,
		Frames:            512,
		WavetableSize:     8192,
		FPS:               60,
		Port:              3003,
		RxBufferSize:      8192,
		MaxPacketSize:     16 << 20,
		FramesQueueSize:   7,
		CommandsQueueSize: 512,
		OutputChannels:    2,
		Device:            -1,
		NoiseAmount:       0.1,
		PauseTimeout:      500 * time.Millisecond,
		OSCAddr:           "127.0.0.1",
		OSCPort:           57120,
		GrainsDir:         "./grains/",
		GainCC:            7,
		StatsInterval:     10 * time.Second,
		LogLevel:          "info",
	}
}

// Load reads the YAML file at path over the defaults. Unknown keys are an
// error.
func Load(path string) (Config, error) {
	c := Default()
	f, err := os.Open(path)
	if err != nil {
		return c, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return c, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// Parse parses the command line arguments into a configuration. When the
// -config flag names a file, the file is loaded first and the other flags
// override it. extra registers additional flags on the flag set; it is called
// again when the file is loaded.
func Parse(name string, args []string, extra ...func(*flag.FlagSet)) (Config, *flag.FlagSet, error) {
	c := Default()
	fs := newFlagSet(name, &c, extra)
	if err := fs.Parse(args); err != nil {
		return c, fs, err
	}
	path := fs.Lookup("config").Value.String()
	if path == "" {
		return c, fs, nil
	}
	c, err := Load(path)
	if err != nil {
		return c, fs, err
	}
	fs = newFlagSet(name, &c, extra)
	err = fs.Parse(args)
	return c, fs, err
}

func newFlagSet(name string, c *Config, extra []func(*flag.FlagSet)) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.String("config", "", "YAML configuration `file`; flags override its values.")
	c.RegisterFlags(fs)
	for _, f := range extra {
		f(fs)
	}
	return fs
}

// RegisterFlags binds every option to a flag of fs, using the current values
// as defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.SampleRate, "sample_rate", c.SampleRate, "Output sample rate in Hz.")
	fs.IntVar(&c.Frames, "frames", c.Frames, "Samples per audio callback.")
	fs.IntVar(&c.WavetableSize, "wavetable_size", c.WavetableSize, "Length of the sine wavetable.")
	fs.IntVar(&c.FPS, "fps", c.FPS, "Frames per second sent by the client; sets the interpolation tick.")
	fs.IntVar(&c.Port, "port", c.Port, "WebSocket listening port.")
	fs.StringVar(&c.Iface, "iface", c.Iface, "Listening interface address; empty listens on all interfaces.")
	fs.IntVar(&c.RxBufferSize, "rx_buffer_size", c.RxBufferSize, "Bytes read from the connection at once.")
	fs.IntVar(&c.MaxPacketSize, "max_packet_size", c.MaxPacketSize, "Larger packets are skipped.")
	fs.IntVar(&c.FramesQueueSize, "frames_queue_size", c.FramesQueueSize, "Frames waiting for the render side before the oldest is dropped.")
	fs.IntVar(&c.CommandsQueueSize, "commands_queue_size", c.CommandsQueueSize, "Capacity of the command queue.")
	fs.IntVar(&c.OutputChannels, "output_channels", c.OutputChannels, "Output channels; even, at least 2. Each pair is one synthesis channel.")
	fs.IntVar(&c.Device, "device", c.Device, "Output device; -1 selects the default device.")
	fs.Float64Var(&c.NoiseAmount, "noise_amount", c.NoiseAmount, "Amplitude of the oscillator detune noise.")
	fs.Float64Var(&c.ActivityCutoff, "activity_cutoff", c.ActivityCutoff, "Amplitudes at or below this value are silent.")
	fs.IntVar(&c.HoldTicks, "hold_ticks", c.HoldTicks, "Ticks the last frame is held when no new frame arrives; 0 silences the output at the first missed frame.")
	fs.DurationVar(&c.PauseTimeout, "pause_timeout", c.PauseTimeout, "Maximum wait for the audio callback to pause on a settings change.")
	fs.BoolVar(&c.OSCOut, "osc_out", c.OSCOut, "Send the notes of every frame over OSC.")
	fs.StringVar(&c.OSCAddr, "osc_addr", c.OSCAddr, "OSC destination address.")
	fs.IntVar(&c.OSCPort, "osc_port", c.OSCPort, "OSC destination port.")
	fs.StringVar(&c.GrainsDir, "grains_dir", c.GrainsDir, "Directory of the .wav grain sources.")
	fs.StringVar(&c.MIDIInput, "midi_input", c.MIDIInput, "MIDI input port controlling the gain; empty disables MIDI.")
	fs.IntVar(&c.GainCC, "gain_cc", c.GainCC, "MIDI control change number mapped to the gain.")
	fs.StringVar(&c.Record, "record", c.Record, "Record every received packet to this `file`.")
	fs.DurationVar(&c.StatsInterval, "stats_interval", c.StatsInterval, "Interval of the statistics log; 0 disables it.")
	fs.StringVar(&c.LogLevel, "log_level", c.LogLevel, "Log level: trace, debug, info, warn or error.")
}

// Validate replaces every invalid option by its default and logs a warning
// for each. It returns the names of the replaced options.
func (c *Config) Validate() []string {
	d := Default()
	var fixed []string
	fix := func(name string, invalid bool, value, def any, reset func()) {
		if !invalid {
			return
		}
		logrus.WithFields(logrus.Fields{
			"function": "Config.Validate",
			"option":   name,
			"value":    value,
			"default":  def,
		}).Warn("invalid option, using the default")
		reset()
		fixed = append(fixed, name)
	}
	fix("sample_rate", c.SampleRate <= 0, c.SampleRate, d.SampleRate, func() { c.SampleRate = d.SampleRate })
	fix("frames", c.Frames <= 0, c.Frames, d.Frames, func() { c.Frames = d.Frames })
	fix("wavetable_size", c.WavetableSize <= 0, c.WavetableSize, d.WavetableSize, func() { c.WavetableSize = d.WavetableSize })
	fix("fps", c.FPS <= 0, c.FPS, d.FPS, func() { c.FPS = d.FPS })
	fix("port", c.Port <= 0 || c.Port > 65535, c.Port, d.Port, func() { c.Port = d.Port })
	fix("rx_buffer_size", c.RxBufferSize <= 0, c.RxBufferSize, d.RxBufferSize, func() { c.RxBufferSize = d.RxBufferSize })
	fix("max_packet_size", c.MaxPacketSize <= 0, c.MaxPacketSize, d.MaxPacketSize, func() { c.MaxPacketSize = d.MaxPacketSize })
	fix("frames_queue_size", c.FramesQueueSize <= 0, c.FramesQueueSize, d.FramesQueueSize, func() { c.FramesQueueSize = d.FramesQueueSize })
	fix("commands_queue_size", c.CommandsQueueSize <= 0, c.CommandsQueueSize, d.CommandsQueueSize, func() { c.CommandsQueueSize = d.CommandsQueueSize })
	fix("output_channels", c.OutputChannels < 2 || c.OutputChannels%2 != 0, c.OutputChannels, d.OutputChannels, func() { c.OutputChannels = d.OutputChannels })
	fix("device", c.Device < -1, c.Device, d.Device, func() { c.Device = d.Device })
	fix("noise_amount", c.NoiseAmount < 0, c.NoiseAmount, d.NoiseAmount, func() { c.NoiseAmount = d.NoiseAmount })
	fix("activity_cutoff", c.ActivityCutoff < 0 || c.ActivityCutoff >= 1, c.ActivityCutoff, d.ActivityCutoff, func() { c.ActivityCutoff = d.ActivityCutoff })
	fix("hold_ticks", c.HoldTicks < 0, c.HoldTicks, d.HoldTicks, func() { c.HoldTicks = d.HoldTicks })
	fix("pause_timeout", c.PauseTimeout <= 0, c.PauseTimeout, d.PauseTimeout, func() { c.PauseTimeout = d.PauseTimeout })
	fix("osc_port", c.OSCPort <= 0 || c.OSCPort > 65535, c.OSCPort, d.OSCPort, func() { c.OSCPort = d.OSCPort })
	fix("gain_cc", c.GainCC < 0 || c.GainCC > 127, c.GainCC, d.GainCC, func() { c.GainCC = d.GainCC })
	fix("stats_interval", c.StatsInterval < 0, c.StatsInterval, d.StatsInterval, func() { c.StatsInterval = d.StatsInterval })
	_, err := logrus.ParseLevel(c.LogLevel)
	fix("log_level", err != nil, c.LogLevel, d.LogLevel, func() { c.LogLevel = d.LogLevel })
	return fixed
}

// Channels returns the number of synthesis channels, one per output pair.
func (c *Config) Channels() int { return c.OutputChannels / 2 }

// TickSamples returns the number of samples between two client frames.
func (c *Config) TickSamples() int { return max(c.SampleRate/c.FPS, 1) }

// Addr returns the listening address.
func (c *Config) Addr() string { return net.JoinHostPort(c.Iface, strconv.Itoa(c.Port)) }

// Level returns the log level, info when it does not parse.
func (c *Config) Level() logrus.Level {
	l, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return l
}
