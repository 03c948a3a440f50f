// Package cli implements the loadwatch command-line interface.
//
// # Command Structure
//
//	loadwatch serve                         - Monitor saved servers until stopped
//	loadwatch host [add|remove|list]        - Manage monitored servers
//	loadwatch threshold [set|get]           - Show or change alert thresholds
//	loadwatch load <host>                   - Sample one server now
//	loadwatch doctor                        - Diagnose config, state and servers
//	loadwatch version                       - Print build info
//
// Every command loads config, builds a service.Service through openApp and
// closes it before returning, so state changes are saved even on error.
// One-shot commands open the service lazily and connect only to the host
// they touch. serve and host list reconnect every saved server.
//
// # Flag Handling
//
// Global flags (--config, --verbose, --no-color, --tenant) are defined on
// the root command. --tenant defaults to $LOADWATCH_TENANT, then "default".
//
// Prompts use huh and are only shown when stdin is a terminal. Scripts pass
// credentials with --user and --password-stdin instead.
package cli
