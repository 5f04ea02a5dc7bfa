// Package command parses administrative chat commands and carries them out.
//
// Commands map onto the reader management topics:
//
//	/whitelist_update <reader> <value>   → <reader>/whitelist/update
//	/whitelist_add <reader> <value>      → <reader>/whitelist/add
//	/whitelist_remove <reader> <value>   → <reader>/whitelist/remove
//	/configure <key> <reader> <value>    → <reader>/configure/<key>
//	/reset <reader>                      → <reader>/reset
//
// /readers replies with the online readers, /help and /start with usage text.
// Parsing is total: input with too few arguments becomes KindMalformed and
// has no effect.
package command
