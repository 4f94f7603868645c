// Package items provides the built-in library of dotfile backup targets.
package items

import "github.com/dotkeep/dotkeep/internal/manifest"

// Category represents a category of backup targets.
type Category string

const (
	CategoryShell    Category = "shell"
	CategoryEditor   Category = "editor"
	CategoryVCS      Category = "vcs"
	CategoryTerminal Category = "terminal"
	CategorySecurity Category = "security"
	CategoryTools    Category = "tools"
)

// Group is a named set of related backup targets.
type Group struct {
	Name        string
	Description string
	Category    Category
	Items       []manifest.ItemSpec
}

// Library contains all built-in backup target groups.
var Library = []Group{
	{
		Name:        "Shells",
		Description: "Shell configuration and profiles",
		Category:    CategoryShell,
		Items: []manifest.ItemSpec{
			{Path: ".bashrc"},
			{Path: ".bash_profile"},
			{Path: ".bash_aliases"},
			{Path: ".profile"},
			{Path: ".zshrc"},
			{Path: ".zprofile"},
			{Path: ".zshenv"},
			{Path: ".config/fish/config.fish"},
			{Path: ".config/fish/functions/*.fish", Wildcard: true},
		},
	},
	{
		Name:        "Editors",
		Description: "Editor configuration",
		Category:    CategoryEditor,
		Items: []manifest.ItemSpec{
			{Path: ".vimrc"},
			{Path: ".vim"},
			{Path: ".config/nvim"},
			{Path: ".emacs"},
			{Path: ".emacs.d/init.el"},
			{Path: ".editorconfig"},
		},
	},
	{
		Name:        "Version control",
		Description: "Git and related tool configuration",
		Category:    CategoryVCS,
		Items: []manifest.ItemSpec{
			{Path: ".gitconfig"},
			{Path: ".gitignore_global"},
			{Path: ".gitattributes"},
			{Path: ".config/git"},
			{Path: ".hgrc"},
		},
	},
	{
		Name:        "Terminals",
		Description: "Terminal emulator and multiplexer configuration",
		Category:    CategoryTerminal,
		Items: []manifest.ItemSpec{
			{Path: ".tmux.conf"},
			{Path: ".screenrc"},
			{Path: ".config/alacritty"},
			{Path: ".config/kitty/kitty.conf"},
			{Path: ".config/wezterm"},
			{Path: ".inputrc"},
		},
	},
	{
		Name:        "SSH",
		Description: "SSH client configuration and public keys (no private keys)",
		Category:    CategorySecurity,
		Items: []manifest.ItemSpec{
			{Path: ".ssh/config"},
			{Path: ".ssh/*.pub", Wildcard: true},
			{Path: ".ssh/known_hosts"},
		},
	},
	{
		Name:        "GnuPG",
		Description: "GnuPG configuration (no keyrings)",
		Category:    CategorySecurity,
		Items: []manifest.ItemSpec{
			{Path: ".gnupg/gpg.conf"},
			{Path: ".gnupg/gpg-agent.conf"},
		},
	},
	{
		Name:        "Tools",
		Description: "Assorted tool configuration",
		Category:    CategoryTools,
		Items: []manifest.ItemSpec{
			{Path: ".curlrc"},
			{Path: ".wgetrc"},
			{Path: ".psqlrc"},
			{Path: ".sqliterc"},
			{Path: ".tool-versions"},
			{Path: ".config/htop/htoprc"},
			{Path: ".config/starship.toml"},
			{Path: ".config/direnv/direnvrc"},
		},
	},
}

// Defaults returns the flattened default item list in library order.
func Defaults() []manifest.ItemSpec {
	var specs []manifest.ItemSpec
	for _, group := range Library {
		specs = append(specs, group.Items...)
	}
	return specs
}

// GroupsByCategory returns all groups in the given category.
func GroupsByCategory(c Category) []Group {
	var groups []Group
	for _, group := range Library {
		if group.Category == c {
			groups = append(groups, group)
		}
	}
	return groups
}
