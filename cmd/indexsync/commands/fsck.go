package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maildrop/indexsync/pkg/mailindex"
	"github.com/maildrop/indexsync/pkg/syncmap"
)

var fsckCmd = &cobra.Command{
	Use:   "fsck <index-file>",
	Short: "Repair an index file's redundant header state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := mailindex.OpenIndexFile(args[0])
		if err != nil {
			return err
		}
		m, err := f.ReadMap(false)
		closeErr := f.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return closeErr
		}
		defer m.Unref()

		syncmap.FsckMap(m)

		if err := mailindex.WriteMapFile(args[0], m); err != nil {
			return err
		}
		fmt.Printf("repaired %s: %d messages, %d seen, %d deleted\n",
			args[0], m.Header.MessagesCount,
			m.Header.SeenMessagesCount, m.Header.DeletedMessagesCount)
		return nil
	},
}
