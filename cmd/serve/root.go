package serve

import (
	"fmt"
	"strconv"
	"strings"

	cmdUtil "github.com/ValentinKolb/dVer/cmd/util"
	"github.com/ValentinKolb/dVer/rpc/common"
	"github.com/ValentinKolb/dVer/rpc/server"
	"github.com/ValentinKolb/dVer/rpc/transport/http"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the dVer server",
		Long:    `Start the dVer server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DVER_<flag> (e.g. DVER_LEASE_TTL=10s)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "stores"
	ServeCmd.PersistentFlags().String(key, "1=memory", cmdUtil.WrapString("Comma-separated list of stores to serve. Format: ID=TYPE where TYPE is one of: memory, bolt, sqlite, raft"))

	key = "rtt-millisecond"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("(raft) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances"))

	key = "snapshot-entries"
	ServeCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("(raft) SnapshotEntries defines how often the state machine should be snapshotted automatically, in applied Raft log entries. 0 disables automatic snapshots (not recommended)"))

	key = "compaction-overhead"
	ServeCmd.PersistentFlags().Int(key, 5, cmdUtil.WrapString("(raft) CompactionOverhead defines the number of log entries retained after a snapshot. Recommended value is about 1/2 of SnapshotEntries"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("Directory for the raft data and the files of bolt and sqlite stores"))

	key = "replica-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(raft) ReplicaID is the unique name of this NodeHost instance (e.g. 'node-1')"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(raft) ClusterMembers is a comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout of a single request in seconds"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	// versioning
	key = "history-collection"
	ServeCmd.PersistentFlags().String(key, "versions", cmdUtil.WrapString("Suffix of the history collections, the history of 'pages' is stored in 'pages.<suffix>'"))

	key = "lease-collection"
	ServeCmd.PersistentFlags().String(key, "leases", cmdUtil.WrapString("Collection holding the write leases of all versioned collections"))

	key = "lease-ttl"
	ServeCmd.PersistentFlags().Duration(key, 0, cmdUtil.WrapString("How long a write lease is held at most (0 uses the default)"))

	key = "tenant-field"
	ServeCmd.PersistentFlags().String(key, "companyId", cmdUtil.WrapString("Payload field copied onto the tombstone of a deleted record"))

	key = "log-errors"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Log every failed versioned mutation"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	stores, err := parseStores(viper.GetString("stores"))
	if err != nil {
		return err
	}
	serveCmdConfig.Stores = stores

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	serveCmdConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	serveCmdConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.Versioning = common.VersioningConfig{
		HistoryCollection: viper.GetString("history-collection"),
		LeaseCollection:   viper.GetString("lease-collection"),
		LeaseTTL:          viper.GetDuration("lease-ttl"),
		TenantField:       viper.GetString("tenant-field"),
		LogErrors:         viper.GetBool("log-errors"),
	}

	if _, err := common.ParseLogLevel(serveCmdConfig.LogLevel); err != nil {
		return err
	}

	return processRaftConfig(serveCmdConfig, viper.GetString("replica-id"), viper.GetString("cluster-members"))
}

// parseStores parses the --stores flag (e.g. "1=memory,2=bolt")
func parseStores(s string) ([]common.ServerStore, error) {
	var stores []common.ServerStore
	for _, storeConfig := range strings.Split(s, ",") {
		if strings.TrimSpace(storeConfig) == "" {
			continue
		}
		parts := strings.Split(storeConfig, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid store format: %s (expected ID=TYPE)", storeConfig)
		}

		storeID, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid store ID %s: %v", parts[0], err)
		}
		if storeID == 0 {
			return nil, fmt.Errorf("invalid store ID 0 (must be positive)")
		}

		storeType, err := common.ParseStoreType(parts[1])
		if err != nil {
			return nil, err
		}

		stores = append(stores, common.ServerStore{StoreID: storeID, Type: storeType})
	}
	if len(stores) == 0 {
		return nil, fmt.Errorf("no stores configured")
	}
	return stores, nil
}

// processRaftConfig sets the replica id and the cluster members. Both are only required if a raft store is configured.
func processRaftConfig(config *common.ServerConfig, replicaID, clusterMembers string) error {
	if replicaID != "" {
		config.ReplicaID = cmdUtil.HashName(replicaID)
	} else if config.HasRaftStore() {
		return fmt.Errorf("ReplicaId is required for raft stores")
	}

	if clusterMembers != "" {
		config.ClusterMembers = make(map[uint64]string)
		for _, member := range strings.Split(clusterMembers, ",") {
			parts := strings.Split(member, "=")
			if len(parts) != 2 {
				return fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
			}
			config.ClusterMembers[cmdUtil.HashName(strings.TrimSpace(parts[0]))] = strings.TrimSpace(parts[1])
		}
	} else if config.HasRaftStore() {
		return fmt.Errorf("ClusterMembers is required for raft stores")
	}

	// test if the replica id is in the cluster members
	if _, ok := config.ClusterMembers[config.ReplicaID]; !ok && config.HasRaftStore() {
		return fmt.Errorf("no address found for replica ID %s in cluster members", replicaID)
	}

	return nil
}

// run starts the dVer server and blocks until it is interrupted
func run(cmd *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		http.NewHttpServerTransport(),
		s,
	)

	return serv.Serve(cmd.Context())
}
