// Package chat interprets the text commands typed into the chat box. Each
// role has its own grammar; every command yields a Result and never panics
// out to the caller.
package chat

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"library_chatbot/pkg/apperr"
	"library_chatbot/pkg/auth"
	"library_chatbot/pkg/catalog"
	"library_chatbot/pkg/models"

	"github.com/google/uuid"
)

const (
	DashboardTarget = "/admin/dashboard"
	unknownCommand  = "Unknown command. Type `help`."
	internalError   = "Something went wrong while processing your command. Please try again."
)

type Catalog interface {
	AddBook(ctx context.Context, in catalog.BookInput) (*models.Book, error)
	DeleteBook(ctx context.Context, id uint) (*models.Book, error)
	SearchBooks(ctx context.Context, f catalog.Filter) ([]models.Book, error)
	ListAvailableBooks(ctx context.Context) ([]models.Book, error)
}

type Ledger interface {
	Borrow(ctx context.Context, userID, bookID uint) (*models.Loan, error)
	Return(ctx context.Context, userID, bookID uint) (*models.Loan, error)
	ListBorrowed(ctx context.Context, userID uint) ([]models.Loan, error)
	Sync(ctx context.Context) (int, error)
}

type Interpreter struct {
	catalog Catalog
	ledger  Ledger
	admin   []command
	student []command
}

func NewInterpreter(c Catalog, l Ledger) *Interpreter {
	i := &Interpreter{catalog: c, ledger: l}
	i.admin = i.adminCommands()
	i.student = i.studentCommands()
	return i
}

// Interpret runs one command typed by p.
func (i *Interpreter) Interpret(ctx context.Context, p auth.Principal, text string) (res Result) {
	reqID := uuid.New().String()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("chat %s: panic handling %q for %s: %v", reqID, text, p.Username, r)
			res = Failure(apperr.KindStorageFailure, internalError)
		}
		log.Printf("chat %s: %s %s %q -> %s %s", reqID, p.Role, p.Username, text, res.Outcome, res.Kind)
	}()

	grammar := i.student
	if p.IsAdmin() {
		grammar = i.admin
	}

	cmd, rest, ok := match(grammar, text)
	if !ok {
		return Failure(apperr.KindInvalidInput, unknownCommand)
	}
	args, err := cmd.shape.parse(rest)
	if err != nil {
		return Failure(apperr.KindInvalidInput, fmt.Sprintf("Format: %s%s", cmd.usage, err.Error()))
	}
	return cmd.run(ctx, p, args)
}

// match finds the command whose verb is the longest word-aligned prefix of
// text, ignoring case. rest keeps the caller's original casing.
func match(grammar []command, text string) (command, string, bool) {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)

	best, bestLen := -1, -1
	for ci, cmd := range grammar {
		for _, verb := range cmd.verbs {
			if len(verb) <= bestLen {
				continue
			}
			if lower == verb || strings.HasPrefix(lower, verb+" ") {
				best, bestLen = ci, len(verb)
			}
		}
	}
	if best < 0 {
		return command{}, "", false
	}
	rest := lower[bestLen:]
	if len(lower) == len(text) {
		rest = text[bestLen:]
	}
	return grammar[best], strings.TrimSpace(rest), true
}

type argShape int

const (
	argsNone argShape = iota
	argsAny
	argsText
	argsID
	argsBookFields
)

type args struct {
	id     uint
	text   string
	fields map[string]string
}

// argError carries the detail appended to the usage line.
type argError string

func (e argError) Error() string { return string(e) }

func (s argShape) parse(rest string) (args, error) {
	switch s {
	case argsNone:
		if rest != "" {
			return args{}, argError("")
		}
		return args{}, nil
	case argsAny, argsText:
		return args{text: rest}, nil
	case argsID:
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return args{}, argError(" - Book ID is missing.")
		}
		if len(fields) > 1 {
			return args{}, argError("")
		}
		id, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil || id == 0 {
			return args{}, argError(" - Book ID must be a number.")
		}
		return args{id: uint(id)}, nil
	case argsBookFields:
		fields, ok := parseFields(rest, "title", "author", "genre")
		if !ok {
			return args{}, argError("")
		}
		return args{fields: fields}, nil
	default:
		return args{}, argError("")
	}
}

// parseFields splits "k1:<v> k2:<v> ..." into values. Every key must appear
// exactly once, in any order, with a non-empty value. Keys are matched case
// insensitively; values keep their case.
func parseFields(rest string, keys ...string) (map[string]string, bool) {
	lower := strings.ToLower(rest)
	if len(lower) != len(rest) {
		rest = lower
	}
	type mark struct {
		key        string
		start, end int
	}
	marks := make([]mark, 0, len(keys))
	for _, k := range keys {
		tag := k + ":"
		idx := -1
		for from := 0; from < len(lower); {
			j := strings.Index(lower[from:], tag)
			if j < 0 {
				break
			}
			pos := from + j
			if pos == 0 || lower[pos-1] == ' ' {
				if idx >= 0 {
					return nil, false
				}
				idx = pos
			}
			from = pos + len(tag)
		}
		if idx < 0 {
			return nil, false
		}
		marks = append(marks, mark{key: k, start: idx, end: idx + len(tag)})
	}

	sort.Slice(marks, func(a, b int) bool { return marks[a].start < marks[b].start })
	if marks[0].start != 0 {
		return nil, false
	}

	out := make(map[string]string, len(marks))
	for n, m := range marks {
		stop := len(rest)
		if n+1 < len(marks) {
			stop = marks[n+1].start
		}
		v := strings.TrimSpace(rest[m.end:stop])
		if v == "" {
			return nil, false
		}
		out[m.key] = v
	}
	return out, true
}

// failureFor turns a service error into a reply, using text for the
// expected business failures.
func failureFor(err error, text map[apperr.Kind]string) Result {
	kind := apperr.KindOf(err)
	if msg, ok := text[kind]; ok {
		return Failure(kind, msg)
	}
	if kind == apperr.KindStorageFailure {
		log.Printf("chat: storage failure: %v", err)
		return Failure(kind, internalError)
	}
	return Failure(kind, err.Error())
}
