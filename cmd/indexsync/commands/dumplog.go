package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maildrop/indexsync/pkg/txlog"
)

var dumpLogCmd = &cobra.Command{
	Use:   "dump-log <log-file>...",
	Short: "Walk a transaction log and print every record",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, stores, err := txlog.OpenFileLog(args...)
		if err != nil {
			return err
		}
		defer func() {
			for _, s := range stores {
				_ = s.Close()
			}
		}()

		view := log.NewView()
		if _, _, err := view.Set(0, 0, 0, 0); err != nil {
			return err
		}
		for {
			hdr, payload, ok, err := view.Next()
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			seq, offset := view.PrevPos()
			markers := ""
			if hdr.IsExternal() {
				markers += " external"
			}
			if hdr.Type&txlog.FlagExpungeProtect != 0 {
				markers += " protected"
			}
			fmt.Printf("seq=%d offset=%d type=0x%05x size=%d%s\n",
				seq, offset, uint32(hdr.Masked()), len(payload), markers)
		}
	},
}
