package store

import (
	"fmt"

	"github.com/ValentinKolb/dVer/cmd/util"
	"github.com/ValentinKolb/dVer/lib/docstore"
	"github.com/ValentinKolb/dVer/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcStore docstore.IDocStore

	// StoreCommands represents the raw document store command group
	StoreCommands = &cobra.Command{
		Use:               "store",
		Short:             "Perform raw document store operations (bypasses versioning)",
		PersistentPreRunE: setupStoreClient,
		PersistentPostRun: func(*cobra.Command, []string) {
			if rpcStore != nil {
				_ = rpcStore.Close()
			}
		},
	}

	getCmd = &cobra.Command{
		Use:   "get [collection] [key]",
		Short: "Reads a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := rpcStore.Get(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return util.PrintJSON(doc)
		},
	}
	insertCmd = &cobra.Command{
		Use:   "insert [collection] [json]",
		Short: "Inserts a document, the key is taken from its _id field",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := util.ParseDocument(args[1])
			if err != nil {
				return err
			}
			if err := rpcStore.Insert(cmd.Context(), args[0], doc); err != nil {
				return err
			}
			fmt.Println("inserted successfully")
			return nil
		},
	}
	replaceCmd = &cobra.Command{
		Use:   "replace [collection] [key] [json]",
		Short: "Overwrites a document",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := util.ParseDocument(args[2])
			if err != nil {
				return err
			}
			if err := rpcStore.Replace(cmd.Context(), args[0], args[1], doc); err != nil {
				return err
			}
			fmt.Println("replaced successfully")
			return nil
		},
	}
	removeCmd = &cobra.Command{
		Use:   "remove [collection] [key]",
		Short: "Deletes a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcStore.Remove(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("removed successfully")
			return nil
		},
	}
	scanCmd = &cobra.Command{
		Use:   "scan [collection] [prefix]",
		Short: "Lists the documents of a collection whose key starts with prefix",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 2 {
				prefix = args[1]
			}
			docs, err := rpcStore.Scan(cmd.Context(), args[0], prefix)
			if err != nil {
				return err
			}
			return util.PrintJSON(docs)
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags
	util.SetupRPCClientFlags(StoreCommands, 1)

	// Add subcommands
	StoreCommands.AddCommand(getCmd)
	StoreCommands.AddCommand(insertCmd)
	StoreCommands.AddCommand(replaceCmd)
	StoreCommands.AddCommand(removeCmd)
	StoreCommands.AddCommand(scanCmd)
}

// setupStoreClient initializes the RPC document store client
func setupStoreClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	rpcStore, err = client.NewRPCDocStore(
		util.GetStoreID(),
		*util.GetClientConfig(),
		util.GetTransport(),
		s,
	)
	return err
}
