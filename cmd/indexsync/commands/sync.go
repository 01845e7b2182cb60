package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/maildrop/indexsync/pkg/mailindex"
	"github.com/maildrop/indexsync/pkg/metrics"
	"github.com/maildrop/indexsync/pkg/syncmap"
	"github.com/maildrop/indexsync/pkg/txlog"
)

var syncCmd = &cobra.Command{
	Use:   "sync <index-file> <log-file>...",
	Short: "Replay a transaction log into an index file",
	Long: `Reads the index file, replays the transaction log from the
index's recorded position, and writes the advanced index back. A missing
index file starts from an empty map.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		indexPath := args[0]

		log, stores, err := txlog.OpenFileLog(args[1:]...)
		if err != nil {
			return err
		}
		defer func() {
			for _, s := range stores {
				_ = s.Close()
			}
		}()

		var m *mailindex.Map
		if _, err := os.Stat(indexPath); err == nil {
			f, err := mailindex.OpenIndexFile(indexPath)
			if err != nil {
				return err
			}
			m, err = f.ReadMap(false)
			closeErr := f.Close()
			if err != nil {
				return err
			}
			if closeErr != nil {
				return closeErr
			}
		} else {
			m = mailindex.NewEmptyMap(mailindex.BaseRecordSize)
			m.Header.IndexID = log.Head().Hdr.IndexID
		}

		idx := mailindex.NewIndex(indexPath, m.Ref())
		defer idx.Close()

		syncer := syncmap.NewSyncer(idx, log, syncmap.Options{
			RewriteMinLogBytes: cfg.Index.RewriteMinLogBytes,
			NoDirty:            cfg.Index.NoDirty,
			DebugChecks:        cfg.Index.DebugChecks,
			Metrics:            metrics.NewSyncMetrics(),
		})

		out, res, err := syncer.SyncMap(context.Background(), m, syncmap.TypeFile)
		if err != nil {
			return err
		}
		if res.Status == syncmap.StatusLostLog {
			return fmt.Errorf("lost log: %s", res.Reason)
		}

		if err := mailindex.WriteMapFile(indexPath, out); err != nil {
			return err
		}
		fmt.Printf("synced %s: %d messages, log seq=%d offset=%d\n",
			indexPath, out.Header.MessagesCount,
			out.Header.LogFileSeq, out.Header.LogFileHeadOffset)
		return nil
	},
}
