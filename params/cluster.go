package params

import "errors"

// Define available clusters.
const (
	ClusterUndefined   = ""
	ClusterMainnetBeta = "mainnet-beta"
	ClusterTestnet     = "testnet"
	ClusterDevnet      = "devnet"
	ClusterLocalnet    = "localnet"
)

// Cluster defines the public entry points of one cluster.
type Cluster struct {
	RPCEndpoints []string `json:"rpcendpoints"`
	WSEndpoint   string   `json:"wsendpoint"`
}

var clusters = map[string]Cluster{
	ClusterMainnetBeta: {
		RPCEndpoints: []string{"https://api.mainnet-beta.solana.com"},
		WSEndpoint:   "wss://api.mainnet-beta.solana.com",
	},
	ClusterTestnet: {
		RPCEndpoints: []string{"https://api.testnet.solana.com"},
		WSEndpoint:   "wss://api.testnet.solana.com",
	},
	ClusterDevnet: {
		RPCEndpoints: []string{"https://api.devnet.solana.com"},
		WSEndpoint:   "wss://api.devnet.solana.com",
	},
	ClusterLocalnet: {
		RPCEndpoints: []string{"http://127.0.0.1:8899"},
		WSEndpoint:   "ws://127.0.0.1:8900",
	},
}

// ClusterForName returns a cluster for a given name.
func ClusterForName(name string) (Cluster, error) {
	cluster, ok := clusters[name]
	if ok {
		return cluster, nil
	}
	return Cluster{}, errors.New("cluster could not be found")
}
