// Package solwire holds the domain primitives shared by every layer of
// the client: account addresses, signatures, commitment levels, the
// signing capability interface and the transport error taxonomy.
//
// The heavy lifting lives in the subpackages: rpc (HTTP transport
// core), ws (websocket subscription multiplexer), pda (program-derived
// address engine), keys (ed25519 signer implementation) and client
// (the facade composing them).
package solwire
