package serve

import (
	"testing"

	cmdUtil "github.com/ValentinKolb/dVer/cmd/util"
	"github.com/ValentinKolb/dVer/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStores(t *testing.T) {
	stores, err := parseStores("1=memory, 2=BOLT,3=sqlite,4=raft")
	require.NoError(t, err)
	assert.Equal(t, []common.ServerStore{
		{StoreID: 1, Type: common.StoreTypeMemory},
		{StoreID: 2, Type: common.StoreTypeBolt},
		{StoreID: 3, Type: common.StoreTypeSQLite},
		{StoreID: 4, Type: common.StoreTypeRaft},
	}, stores)

	for _, invalid := range []string{"", "1", "x=memory", "0=memory", "1=redis", "1=memory=2"} {
		_, err := parseStores(invalid)
		assert.Error(t, err, invalid)
	}
}

func TestProcessRaftConfig(t *testing.T) {
	t.Run("LocalStoresNeedNoCluster", func(t *testing.T) {
		config := &common.ServerConfig{Stores: []common.ServerStore{{StoreID: 1, Type: common.StoreTypeMemory}}}
		require.NoError(t, processRaftConfig(config, "", ""))
	})

	t.Run("Raft", func(t *testing.T) {
		config := &common.ServerConfig{Stores: []common.ServerStore{{StoreID: 1, Type: common.StoreTypeRaft}}}
		require.NoError(t, processRaftConfig(config, "node-1", "node-1=localhost:63001,node-2=localhost:63002"))
		assert.Equal(t, cmdUtil.HashName("node-1"), config.ReplicaID)
		assert.Len(t, config.ClusterMembers, 2)
		assert.Equal(t, "localhost:63001", config.ClusterMembers[config.ReplicaID])
	})

	t.Run("RaftMissingReplica", func(t *testing.T) {
		config := &common.ServerConfig{Stores: []common.ServerStore{{StoreID: 1, Type: common.StoreTypeRaft}}}
		assert.Error(t, processRaftConfig(config, "", "node-1=localhost:63001"))
	})

	t.Run("RaftReplicaNotMember", func(t *testing.T) {
		config := &common.ServerConfig{Stores: []common.ServerStore{{StoreID: 1, Type: common.StoreTypeRaft}}}
		assert.Error(t, processRaftConfig(config, "node-3", "node-1=localhost:63001"))
	})
}
