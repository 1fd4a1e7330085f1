package doc

import (
	"fmt"
	"strconv"

	"github.com/ValentinKolb/dVer/cmd/util"
	"github.com/ValentinKolb/dVer/lib/versioning"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	createCmd = &cobra.Command{
		Use:   "create [json] [id]",
		Short: "Creates a record, the id is assigned by the server if omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := util.ParseDocument(args[0])
			if err != nil {
				return err
			}
			rec := &versioning.LiveRecord{Payload: payload}
			if len(args) == 2 {
				rec.ID = args[1]
			}
			if err := collection.Create(cmd.Context(), rec); err != nil {
				return err
			}
			fmt.Printf("created id=%s, version=%d\n", rec.ID, rec.Version)
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [id]",
		Short: "Reads the live record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := collection.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return util.PrintJSON(rec.Document())
		},
	}
	updateCmd = &cobra.Command{
		Use:   "update [id] [version] [json]",
		Short: "Replaces the payload of a record if its version is still [version]",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseVersion(args[1])
			if err != nil {
				return err
			}
			payload, err := util.ParseDocument(args[2])
			if err != nil {
				return err
			}
			rec := &versioning.LiveRecord{ID: args[0], Version: version, Payload: payload}
			if err := collection.Update(cmd.Context(), rec, viper.GetString("changed-by")); err != nil {
				return err
			}
			fmt.Printf("updated id=%s, version=%d\n", rec.ID, rec.Version)
			return nil
		},
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [id] [version]",
		Short: "Deletes a record if its version is still [version]",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseVersion(args[1])
			if err != nil {
				return err
			}
			rec := &versioning.LiveRecord{ID: args[0], Version: version}
			if err := collection.Delete(cmd.Context(), rec, viper.GetString("changed-by")); err != nil {
				return err
			}
			fmt.Printf("deleted id=%s, tombstone version=%d\n", rec.ID, rec.Version)
			return nil
		},
	}
	historyCmd = &cobra.Command{
		Use:   "history [id]",
		Short: "Lists the history records of a record, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := collection.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			docs := make([]map[string]any, len(history))
			for i, h := range history {
				docs[i] = h.Document()
			}
			return util.PrintJSON(docs)
		},
	}
)

func parseVersion(s string) (int64, error) {
	version, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("version must be a number: %w", err)
	}
	return version, nil
}
