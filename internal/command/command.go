package command

import (
	"strings"

	"github.com/prohidna/checkpoint-bridge/internal/infrastructure/mqtt"
)

// Kind classifies a parsed command.
type Kind string

// Command kinds.
const (
	KindWhitelistUpdate Kind = "whitelist_update"
	KindWhitelistAdd    Kind = "whitelist_add"
	KindWhitelistRemove Kind = "whitelist_remove"
	KindConfigure       Kind = "configure"
	KindReset           Kind = "reset"
	KindReaders         Kind = "readers"
	KindHelp            Kind = "help"

	// KindUnknown is any text that is not a recognised command.
	KindUnknown Kind = "unknown"

	// KindMalformed is a recognised command with too few arguments.
	KindMalformed Kind = "malformed"
)

// ReadersEnd terminates every /readers reply.
const ReadersEnd = "-- end --"

// commandDef describes one recognised command word.
type commandDef struct {
	kind Kind
	// tokens is the minimum token count including the command word.
	tokens int
}

var commands = map[string]commandDef{
	"/whitelist_update": {KindWhitelistUpdate, 3},
	"/whitelist_add":    {KindWhitelistAdd, 3},
	"/whitelist_remove": {KindWhitelistRemove, 3},
	"/configure":        {KindConfigure, 4},
	"/reset":            {KindReset, 2},
	"/readers":          {KindReaders, 1},
	"/help":             {KindHelp, 1},
	"/start":            {KindHelp, 1},
}

// publishArgs is the argument count each publishing kind requires.
var publishArgs = map[Kind]int{
	KindWhitelistUpdate: 2,
	KindWhitelistAdd:    2,
	KindWhitelistRemove: 2,
	KindConfigure:       3,
	KindReset:           1,
}

// Usage is the reply to /help and /start.
const Usage = `Checkpoint bridge commands:
/whitelist_update <reader> <value> - replace a reader's whitelist
/whitelist_add <reader> <value> - add an entry to a reader's whitelist
/whitelist_remove <reader> <value> - remove an entry from a reader's whitelist
/configure <key> <reader> <value> - set a configuration key on a reader
/reset <reader> - restart a reader
/readers - list readers that are online`

// Command is the validated form of one inbound text message.
//
// Args holds exactly the fixed arguments of the kind (extra tokens are
// dropped); for KindMalformed and KindUnknown it holds whatever followed
// the command word.
type Command struct {
	Kind Kind
	// Name is the command word as typed, without any @botname suffix.
	Name string
	Args []string
}

// Parse splits text on whitespace and validates it against the command table.
// It never fails: unrecognised input is KindUnknown and under-length input is
// KindMalformed.
func Parse(text string) Command {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Command{Kind: KindUnknown, Args: []string{}}
	}

	name := fields[0]
	// Group chats address bots as /command@botname.
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}
	name = strings.ToLower(name)

	s, ok := commands[name]
	if !ok {
		return Command{Kind: KindUnknown, Name: name, Args: fields[1:]}
	}
	if len(fields) < s.tokens {
		return Command{Kind: KindMalformed, Name: name, Args: fields[1:]}
	}

	return Command{Kind: s.kind, Name: name, Args: fields[1:s.tokens]}
}

// Publication returns the broker message a command produces.
// ok is false for kinds that do not publish.
//
//	/whitelist_update r1 v  → r1/whitelist/update ← v
//	/configure key r1 v     → r1/configure/key    ← v
//	/reset r1               → r1/reset            ← r1
func (c Command) Publication() (topic, payload string, ok bool) {
	if len(c.Args) < publishArgs[c.Kind] {
		return "", "", false
	}

	topics := mqtt.Topics{}
	switch c.Kind {
	case KindWhitelistUpdate:
		return topics.Whitelist(c.Args[0], mqtt.WhitelistUpdate), c.Args[1], true
	case KindWhitelistAdd:
		return topics.Whitelist(c.Args[0], mqtt.WhitelistAdd), c.Args[1], true
	case KindWhitelistRemove:
		return topics.Whitelist(c.Args[0], mqtt.WhitelistRemove), c.Args[1], true
	case KindConfigure:
		return topics.Configure(c.Args[1], c.Args[0]), c.Args[2], true
	case KindReset:
		return topics.Reset(c.Args[0]), c.Args[0], true
	default:
		return "", "", false
	}
}

// FormatReaders renders the /readers reply: one id per line, then ReadersEnd.
func FormatReaders(ids []string) string {
	var b strings.Builder
	for _, id := range ids {
		b.WriteString(id)
		b.WriteByte('\n')
	}
	b.WriteString(ReadersEnd)
	return b.String()
}
