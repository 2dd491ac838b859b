package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/moffa90/go-qdl/firmware"
)

func newPartitionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "partitions",
		Short: "List partitions on every LUN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dev, done, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			parts, err := dev.Partitions(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "LUN\tNAME\tSTART\tSECTORS\tTYPE\tACTIVE")
			for _, p := range parts {
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\t%v\n",
					p.LUN, p.Name, p.StartSector, p.Sectors, p.Entry.Type(), p.Entry.Active())
			}
			return w.Flush()
		},
	}
}

func newFlashCmd(a *app) *cobra.Command {
	var (
		slot     string
		checksum string
	)

	cmd := &cobra.Command{
		Use:   "flash <partition> <image>",
		Short: "Write an image to a partition",
		Long: `Write an image to a partition.

Raw and Android sparse images are accepted, optionally compressed with xz
or bzip2. With --slot the partition is an A/B base name and the image goes
to that slot.

Examples:
  # Write boot_a
  qdl flash boot_a boot.img

  # Write the b copy of system, checking the expanded content
  qdl flash system system.img.xz --slot b --sha256 9f86d0...`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			partition, path := args[0], args[1]

			opts := []firmware.Option{firmware.WithName(partition)}
			if checksum != "" {
				sum, err := hex.DecodeString(checksum)
				if err != nil || len(sum) != 32 {
					return fmt.Errorf("--sha256 must be 64 hex digits")
				}
				opts = append(opts, firmware.WithChecksum(sum))
			}
			if slot != "" {
				opts = append(opts, firmware.WithAB(true))
			}
			img, err := firmware.Load(path, opts...)
			if err != nil {
				return err
			}

			dev, done, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			if slot != "" {
				return dev.FlashImage(cmd.Context(), img, slot)
			}
			return dev.FlashBlob(cmd.Context(), partition, img)
		},
	}
	cmd.Flags().StringVar(&slot, "slot", "", "A/B slot to write (a or b)")
	cmd.Flags().StringVar(&checksum, "sha256", "", "expected SHA-256 of the expanded image")
	return cmd
}

func newEraseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "erase <partition>",
		Short: "Zero a partition on every LUN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, done, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer done()
			return dev.Erase(cmd.Context(), args[0])
		},
	}
}

func slotArg(_ *cobra.Command, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected one slot, got %d arguments", len(args))
	}
	if args[0] != "a" && args[0] != "b" {
		return fmt.Errorf("slot must be a or b, got %q", args[0])
	}
	return nil
}

func newSlotCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slot",
		Short: "Show or change the active A/B slot",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the active slot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dev, done, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			slot, err := dev.GetActiveSlot(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), slot)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <a|b>",
		Short: "Make a slot active and boot from it",
		Args:  slotArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, done, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer done()
			return dev.SetActiveSlot(cmd.Context(), args[0])
		},
	})
	return cmd
}

func parseLUN(s string) (int, error) {
	lun, err := strconv.Atoi(s)
	if err != nil || lun < 0 {
		return 0, fmt.Errorf("invalid LUN %q", s)
	}
	return lun, nil
}

func newRepairGPTCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "repair-gpt <lun> [image]",
		Short: "Rewrite or restore a LUN's partition table",
		Long: `Rewrite or restore a LUN's partition table.

With an image, the image is written as the LUN's primary GPT and verified.
Without one, the primary GPT is checked against the backup and restored
from it when they disagree.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lun, err := parseLUN(args[0])
			if err != nil {
				return err
			}

			var img *firmware.Image
			if len(args) == 2 {
				if img, err = firmware.Load(args[1], firmware.WithGPT(lun, 0)); err != nil {
					return err
				}
			}

			dev, done, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			if img != nil {
				return dev.RepairGPT(cmd.Context(), lun, img)
			}
			changed, err := dev.EnsureGPTConsistency(cmd.Context(), lun)
			if err != nil {
				return err
			}
			if changed {
				fmt.Fprintf(cmd.OutOrStdout(), "lun %d: primary GPT restored from backup\n", lun)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "lun %d: GPT is consistent\n", lun)
			}
			return nil
		},
	}
}

func newResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reboot the device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dev, done, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer done()
			return dev.Reset(cmd.Context())
		},
	}
}
