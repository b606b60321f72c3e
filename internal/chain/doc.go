// Package chain reads wallet balances from EVM networks over JSON-RPC.
//
// Every read takes an explicit [Context] (network plus RPC caller) instead
// of consulting shared provider state, so a network switch can never leak a
// stale provider into a read. [Watcher] reports chain switches of a wallet
// provider to subscribers, each of which holds its own unsubscribe handle.
package chain
