package main

import (
	"fmt"
	"io"

	"github.com/google/gousb"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/moffa90/go-qdl/device"
	"github.com/moffa90/go-qdl/firehose"
	"github.com/moffa90/go-qdl/firmware"
	"github.com/moffa90/go-qdl/internal/config"
	"github.com/moffa90/go-qdl/internal/logger"
	"github.com/moffa90/go-qdl/transport/usb"
)

// app carries the state shared by all commands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.AppConfig
	log     *logger.Sugared
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:   "qdl",
		Short: "Flash Qualcomm devices in emergency download mode",
		Long: `qdl talks to a Qualcomm device in emergency download (EDL) mode over USB.

It uploads a Firehose programmer through the Sahara boot ROM protocol, then
reads and writes partitions by name, manages A/B slots and repairs GPTs.

Commands:
  partitions  List partitions on every LUN
  flash       Write an image to a partition
  erase       Zero a partition on every LUN
  slot        Show or change the active A/B slot
  repair-gpt  Rewrite or restore a LUN's partition table
  reset       Reboot the device`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is qdl.yaml in . or the user config dir)")
	flags.Bool("debug", false, "enable debug logging")
	flags.String("log-format", "human", "log format: json or human")
	flags.StringP("programmer", "p", "", "Firehose programmer image (.xz and .bz2 accepted)")
	flags.String("memory", firehose.MemoryUFS, "storage type: UFS or eMMC")
	flags.Int("sector-size", firehose.DefaultSectorSize, "storage sector size in bytes")
	flags.Int("max-lun", firehose.DefaultMaxLUN, "number of LUNs to scan")
	flags.Bool("skip-write", false, "ask the programmer to skip writes")

	for key, flag := range map[string]string{
		"debug":                "debug",
		"log_format":           "log-format",
		"programmer":           "programmer",
		"firehose.memory":      "memory",
		"firehose.sector_size": "sector-size",
		"firehose.max_lun":     "max-lun",
		"firehose.skip_write":  "skip-write",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		newPartitionsCmd(a),
		newFlashCmd(a),
		newEraseCmd(a),
		newSlotCmd(a),
		newRepairGPTCmd(a),
		newResetCmd(a),
	)
	return root
}

// setup loads the configuration and builds the logger.
func (a *app) setup(*cobra.Command, []string) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	l, err := logger.New(logger.LoggerConfig{
		Debug:     cfg.Debug,
		LogFormat: cfg.LogFormat,
		LogFile:   cfg.LogFile,
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger.NewSugared(l)
	return nil
}

// connect opens the USB device and brings it into Firehose mode. The
// returned function closes the transport.
func (a *app) connect(cmd *cobra.Command) (*device.Device, func(), error) {
	opts := usb.DefaultOptions()
	opts.VendorID = gousb.ID(a.cfg.USB.VendorID)
	opts.ProductID = gousb.ID(a.cfg.USB.ProductID)
	if a.cfg.USB.ReadTimeout > 0 {
		opts.ReadTimeout = a.cfg.USB.ReadTimeout
	}
	if a.cfg.USB.WriteTimeout > 0 {
		opts.WriteTimeout = a.cfg.USB.WriteTimeout
	}

	var programmer []byte
	if a.cfg.Programmer != "" {
		var err error
		if programmer, err = readProgrammer(a.cfg.Programmer); err != nil {
			return nil, nil, err
		}
	}

	t, err := usb.Open(opts)
	if err != nil {
		return nil, nil, err
	}

	fh := a.cfg.Firehose
	dev := device.New(t,
		device.WithLogger(a.log),
		device.WithProgrammer(programmer),
		device.WithMemoryName(fh.Memory),
		device.WithSectorSize(fh.SectorSize),
		device.WithMaxLUN(fh.MaxLUN),
		device.WithMaxPayloadSize(fh.MaxPayload),
		device.WithSkipWrite(fh.SkipWrite),
		device.WithResponseTimeout(fh.ResponseTimeout),
		device.WithConnectTimeout(a.cfg.USB.ConnectTimeout),
		device.WithSplitSize(a.cfg.Flash.SplitSize),
		device.WithProgressCallback(newProgressPrinter(cmd.ErrOrStderr(), 30).report),
	)
	if err := dev.Connect(cmd.Context()); err != nil {
		t.Close()
		return nil, nil, err
	}
	return dev, t.Close, nil
}

// readProgrammer reads a programmer image, decompressing it if needed.
func readProgrammer(path string) ([]byte, error) {
	img, err := firmware.Load(path)
	if err != nil {
		return nil, fmt.Errorf("programmer: %w", err)
	}
	rc, err := img.Open()
	if err != nil {
		return nil, fmt.Errorf("programmer: %w", err)
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}
