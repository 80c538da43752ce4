// Package settings is the plain struct of options vhdiinfo's CLI
// populates from its flags before running an inspection.
package settings

// Settings controls what cmd/vhdiinfo prints and how far it walks a
// differential disk's parent chain.
type Settings struct {
	// Path is the file to open. Required.
	Path string

	// SummaryOnly prints a single line instead of the full field list.
	SummaryOnly bool

	// FollowParents opens and binds every ancestor of a differential
	// disk, resolving each parent filename hint relative to the
	// directory of the image that references it.
	FollowParents bool

	// OutputFilename, if set, redirects the report to a file instead
	// of stdout.
	OutputFilename string
}

// Default returns the settings vhdiinfo uses when no flags override them.
func Default() Settings {
	return Settings{
		FollowParents: true,
	}
}
