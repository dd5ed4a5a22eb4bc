// Package gitpush inspects completed shell commands for pushes or merges
// that land on a protected branch, and reads the resulting commit
// metadata. It only ever reads local git state; failures degrade to "no
// push detected".
package gitpush

import (
	"os/exec"
	"strings"

	"github.com/google/shlex"
)

// Protected branches whose pushes produce indexing work.
var protectedBranches = map[string]bool{
	"main":   true,
	"master": true,
}

var docsKeywords = []string{"docs", "documentation", "readme"}

// SkipTag in a commit subject suppresses documentation reindexing.
const SkipTag = "[skip-reindex]"

// Push is a detected push or merge onto a protected branch.
type Push struct {
	Branch  string
	Subject string
	Files   []string
}

// ParsePush tokenizes a shell command and reports whether it contains a
// git push or merge, along with the explicitly named ref if any. Compound
// commands (&&, ;, ||, |) are split into sub-commands first.
func ParsePush(command string) (ref string, ok bool) {
	tokens, err := shlex.Split(command)
	if err != nil {
		return "", false
	}
	for _, sub := range splitSubcommands(tokens) {
		if len(sub) < 2 || sub[0] != "git" {
			continue
		}
		verb, rest := sub[1], sub[2:]
		if verb != "push" && verb != "merge" {
			continue
		}
		if verb == "push" {
			// git push [flags] [remote] [refspec]
			var positional []string
			for _, tok := range rest {
				if strings.HasPrefix(tok, "-") {
					continue
				}
				positional = append(positional, tok)
			}
			if len(positional) >= 2 {
				refspec := positional[1]
				// src:dst refspecs target the dst side.
				if i := strings.LastIndex(refspec, ":"); i >= 0 {
					refspec = refspec[i+1:]
				}
				return refspec, true
			}
		}
		return "", true
	}
	return "", false
}

func splitSubcommands(tokens []string) [][]string {
	var subs [][]string
	var cur []string
	for _, tok := range tokens {
		switch tok {
		case "&&", "||", ";", "|":
			if len(cur) > 0 {
				subs = append(subs, cur)
				cur = nil
			}
		default:
			cur = append(cur, tok)
		}
	}
	if len(cur) > 0 {
		subs = append(subs, cur)
	}
	return subs
}

// Detect reports whether command was a push or merge onto a protected
// branch of the repository at dir, returning the HEAD commit's subject
// and file list. Any git failure yields (nil, false).
func Detect(command, dir string) (*Push, bool) {
	ref, isPush := ParsePush(command)
	if !isPush {
		return nil, false
	}

	branch := ref
	if branch == "" {
		branch = currentBranch(dir)
	}
	if !protectedBranches[branch] {
		return nil, false
	}

	subject, err := gitOutput(dir, "log", "-1", "--pretty=%s")
	if err != nil {
		return nil, false
	}

	var files []string
	if out, err := gitOutput(dir, "diff-tree", "--no-commit-id", "--name-only", "-r", "HEAD"); err == nil && out != "" {
		files = strings.Split(out, "\n")
	}

	return &Push{Branch: branch, Subject: subject, Files: files}, true
}

// DocsTagged reports whether the commit subject asks for documentation
// reindexing: it mentions a docs keyword and carries no skip tag.
func (p *Push) DocsTagged() bool {
	subject := strings.ToLower(firstLine(p.Subject))
	if strings.Contains(subject, strings.ToLower(SkipTag)) {
		return false
	}
	for _, kw := range docsKeywords {
		if strings.Contains(subject, kw) {
			return true
		}
	}
	return false
}

func currentBranch(dir string) string {
	out, err := gitOutput(dir, "branch", "--show-current")
	if err != nil {
		return ""
	}
	return out
}

func gitOutput(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
