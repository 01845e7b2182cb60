package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maildrop/indexsync/pkg/mailindex"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <index-file>",
	Short: "Dump an index file's header, extensions and keywords",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := mailindex.OpenIndexFile(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		m, err := f.ReadMap(false)
		if err != nil {
			return err
		}
		defer m.Unref()

		hdr := &m.Header
		fmt.Printf("index id:            %d\n", hdr.IndexID)
		fmt.Printf("uid validity:        %d\n", hdr.UIDValidity)
		fmt.Printf("messages:            %d\n", hdr.MessagesCount)
		fmt.Printf("next uid:            %d\n", hdr.NextUID)
		fmt.Printf("seen:                %d\n", hdr.SeenMessagesCount)
		fmt.Printf("deleted:             %d\n", hdr.DeletedMessagesCount)
		fmt.Printf("unseen lowwater:     %d\n", hdr.FirstUnseenUIDLowwater)
		fmt.Printf("deleted lowwater:    %d\n", hdr.FirstDeletedUIDLowwater)
		fmt.Printf("record size:         %d\n", hdr.RecordSize)
		fmt.Printf("header size:         %d\n", hdr.HeaderSize)
		fmt.Printf("log position:        seq=%d head=%d tail=%d\n",
			hdr.LogFileSeq, hdr.LogFileHeadOffset, hdr.LogFileTailOffset)
		fmt.Printf("flags:               0x%x\n", uint32(hdr.Flags))

		if len(m.Extensions) > 0 {
			fmt.Println("extensions:")
			for i, ext := range m.Extensions {
				fmt.Printf("  [%d] %s reset_id=%d hdr=%d+%d rec=%d+%d align=%d\n",
					i, ext.Name, ext.ResetID,
					ext.HdrOffset, ext.HdrSize,
					ext.RecordOffset, ext.RecordSize, ext.RecordAlign)
			}
		}
		if len(m.Keywords) > 0 {
			fmt.Printf("keywords:            %v\n", m.Keywords)
		}

		showRecords, _ := cmd.Flags().GetBool("records")
		if showRecords {
			for seq := uint32(1); seq <= hdr.MessagesCount; seq++ {
				fmt.Printf("  seq=%d uid=%d flags=0x%02x\n",
					seq, m.Rec.UIDAt(seq), uint8(m.Rec.FlagsAt(seq)))
			}
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().Bool("records", false, "also dump every record")
}
