package doc

import (
	"github.com/ValentinKolb/dVer/cmd/util"
	"github.com/ValentinKolb/dVer/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	collection *client.VersionedCollection

	// DocCommands represents the versioned document command group
	DocCommands = &cobra.Command{
		Use:               "doc",
		Short:             "Perform versioned document operations",
		PersistentPreRunE: setupDocClient,
		PersistentPostRun: func(*cobra.Command, []string) {
			if collection != nil {
				_ = collection.Close()
			}
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags
	util.SetupRPCClientFlags(DocCommands, 1)

	DocCommands.PersistentFlags().String("collection", "documents", util.WrapString("Name of the versioned collection"))
	DocCommands.PersistentFlags().String("changed-by", "", util.WrapString("Who performs an update or delete, stored on the history record"))

	// Add subcommands
	DocCommands.AddCommand(createCmd)
	DocCommands.AddCommand(getCmd)
	DocCommands.AddCommand(updateCmd)
	DocCommands.AddCommand(deleteCmd)
	DocCommands.AddCommand(historyCmd)
	DocCommands.AddCommand(perfTestCmd)
}

// setupDocClient initializes the RPC client of the versioned collection
func setupDocClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	collection, err = client.NewRPCVersionedCollection(
		util.GetStoreID(),
		viper.GetString("collection"),
		*util.GetClientConfig(),
		util.GetTransport(),
		s,
	)
	return err
}
