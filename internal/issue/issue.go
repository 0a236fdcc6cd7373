// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const docsBase = "https://github.com/invowk/packfetch/blob/main/docs/"

// Id identifies a guidance card.
type Id int

const (
	SuperpackUnreachableId Id = iota + 1
	SuperpackCorruptId
	PackNotFoundId
	DependencyCycleId
	DiskFailureId
	ContentMissingId
	ConfigLoadFailedId
	MountFailedId
)

type (
	MarkdownMsg string

	HttpLink string

	// Issue is a Markdown card explaining a failure and how to recover.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
		extLinks []HttpLink
	}
)

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Markdown returns the card text including the "See also" links.
func (i *Issue) Markdown() string {
	var sb strings.Builder
	sb.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		sb.WriteString("\n\n## See also\n")
		for _, link := range append(i.DocLinks(), i.extLinks...) {
			sb.WriteString("- <" + string(link) + ">\n")
		}
	}
	return sb.String()
}

// Render renders the card with the given glamour style ("dark", "light",
// "notty" or a style file path).
func (i *Issue) Render(stylePath string) (string, error) {
	return render(i.Markdown(), stylePath)
}

var (
	render = glamour.Render

	superpackUnreachableIssue = &Issue{
		id: SuperpackUnreachableId,
		mdMsg: `
# The superpack could not be reached

packfetch needs the superpack footer and file table before any pack can be
fetched, and the server did not deliver them.

## Things you can try
- Check the URL in your config:
~~~
$ packfetch config show
~~~
- Make sure the server answers ranged requests (` + "`Range: bytes=-28`" + `).
- Retry once your network is back. Nothing already downloaded is lost.`,
		docLinks: []HttpLink{docsBase + "superpack.md"},
		extLinks: []HttpLink{"https://developer.mozilla.org/docs/Web/HTTP/Range_requests"},
	}

	superpackCorruptIssue = &Issue{
		id: SuperpackCorruptId,
		mdMsg: `
# The superpack index is corrupt

The footer or file table failed its CRC32 check, or it references packs and
files that do not exist.

## Things you can try
- Rebuild the superpack:
~~~
$ packfetch build superpack.toml game.superpack
~~~
- Check that a proxy is not rewriting the file.`,
		docLinks: []HttpLink{docsBase + "superpack.md"},
	}

	packNotFoundIssue = &Issue{
		id: PackNotFoundId,
		mdMsg: `
# Unknown pack

The superpack has no pack with that name.

## Things you can try
- List the available packs:
~~~
$ packfetch list
~~~`,
		docLinks: []HttpLink{docsBase + "packs.md"},
	}

	dependencyCycleIssue = &Issue{
		id: DependencyCycleId,
		mdMsg: `
# Pack dependencies form a cycle

A pack depends, directly or through other packs, on itself, so no load order
exists.

## Things you can try
- Fix the ` + "`depends`" + ` lists in the build manifest and rebuild.`,
		docLinks: []HttpLink{docsBase + "packs.md"},
	}

	diskFailureIssue = &Issue{
		id: DiskFailureId,
		mdMsg: `
# Local files could not be written

Several writes into the pack directory failed in a row, so packfetch stopped
requesting downloads.

## Things you can try
- Free some disk space.
- Check that the pack directory is writable:
~~~
$ packfetch config show
~~~
- Run the command again. Partially downloaded files are resumed.`,
		docLinks: []HttpLink{docsBase + "storage.md"},
	}

	contentMissingIssue = &Issue{
		id: ContentMissingId,
		mdMsg: `
# The server no longer has the superpack

A file range returned "not found". The superpack was probably replaced while
packfetch was running.

## Things you can try
- Run the command again so the new file table is loaded.`,
		docLinks: []HttpLink{docsBase + "superpack.md"},
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load the configuration

The config file has invalid CUE syntax or values that do not match the schema.

## Things you can try
- Write a fresh config with the defaults:
~~~
$ packfetch config init
~~~
- Compare with the effective configuration:
~~~
$ packfetch config show
~~~`,
		docLinks: []HttpLink{docsBase + "config.md"},
		extLinks: []HttpLink{"https://cuelang.org/docs/"},
	}

	mountFailedIssue = &Issue{
		id: MountFailedId,
		mdMsg: `
# A pack could not be mounted

A finished file did not match its checksum footer. packfetch removed it so
the next fetch downloads it again.

## Things you can try
- Run the fetch again.
- Verify the remaining local files:
~~~
$ packfetch verify
~~~`,
		docLinks: []HttpLink{docsBase + "storage.md"},
	}

	issues = map[Id]*Issue{
		superpackUnreachableIssue.Id(): superpackUnreachableIssue,
		superpackCorruptIssue.Id():     superpackCorruptIssue,
		packNotFoundIssue.Id():         packNotFoundIssue,
		dependencyCycleIssue.Id():      dependencyCycleIssue,
		diskFailureIssue.Id():          diskFailureIssue,
		contentMissingIssue.Id():       contentMissingIssue,
		configLoadFailedIssue.Id():     configLoadFailedIssue,
		mountFailedIssue.Id():          mountFailedIssue,
	}
)

// Values returns every card ordered by Id.
func Values() []*Issue {
	out := maps.Values(issues)
	slices.SortFunc(out, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}
