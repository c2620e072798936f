package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Help styles using lipgloss
var (
	lightGreen  = lipgloss.Color("#90EE90")
	gray        = lipgloss.Color("#A9A9A9")
	darkGray    = lipgloss.Color("#5A5A5A")
	brightGreen = lipgloss.Color("#00FF7F")
	blue        = lipgloss.Color("#0EA5E9") // matches the logger prefix

	helpTitleStyle = lipgloss.NewStyle().
			Foreground(blue).
			Bold(true).
			PaddingBottom(1).
			MarginLeft(2)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(gray).
			Italic(true).
			PaddingBottom(1).
			MarginLeft(2)

	sectionTitleStyle = lipgloss.NewStyle().
				Foreground(lightGreen).
				Bold(true).
				PaddingLeft(2)

	commandStyle = lipgloss.NewStyle().
			Foreground(brightGreen).
			Bold(true).
			PaddingLeft(4)

	parameterStyle = lipgloss.NewStyle().
			Foreground(gray).
			Italic(true)

	descriptionStyle = lipgloss.NewStyle().
				Foreground(gray).
				PaddingLeft(6).
				Width(80 - 6)

	separatorStyle = lipgloss.NewStyle().
			Foreground(darkGray)
)

// renderHelp prints the styled help page of cmd
func renderHelp(cmd *cobra.Command, _ []string) {
	var b strings.Builder

	b.WriteString(helpTitleStyle.Render(cmd.CommandPath() + " - " + cmd.Short))
	b.WriteString("\n")
	if cmd.Long != "" {
		b.WriteString(subtitleStyle.Render(cmd.Long))
		b.WriteString("\n")
	}

	separator(&b)
	b.WriteString(sectionTitleStyle.Render("Usage:"))
	b.WriteString("\n")
	b.WriteString(commandStyle.Render(cmd.UseLine()))
	b.WriteString("\n")
	if cmd.Example != "" {
		b.WriteString(descriptionStyle.Render(cmd.Example))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if subs := visibleCommands(cmd); len(subs) > 0 {
		separator(&b)
		b.WriteString(sectionTitleStyle.Render("Commands:"))
		b.WriteString("\n")
		for _, sub := range subs {
			addEntry(&b, sub.Name(), argsOf(sub), sub.Short)
		}
		b.WriteString("\n")
	}

	if cmd.HasAvailableLocalFlags() {
		separator(&b)
		b.WriteString(sectionTitleStyle.Render("Options:"))
		b.WriteString("\n")
		addFlags(&b, cmd.LocalFlags())
		b.WriteString("\n")
	}
	if cmd.HasAvailableInheritedFlags() {
		separator(&b)
		b.WriteString(sectionTitleStyle.Render("Global options:"))
		b.WriteString("\n")
		addFlags(&b, cmd.InheritedFlags())
		b.WriteString("\n")
	}

	separator(&b)
	b.WriteString(subtitleStyle.Render(fmt.Sprintf("Run '%s [command] --help' for details on a command.", cmd.Root().Name())))
	b.WriteString("\n")

	fmt.Fprint(cmd.OutOrStdout(), b.String())
}

func visibleCommands(cmd *cobra.Command) []*cobra.Command {
	var out []*cobra.Command
	for _, sub := range cmd.Commands() {
		if sub.IsAvailableCommand() {
			out = append(out, sub)
		}
	}
	return out
}

// argsOf returns the argument part of a command's Use line
func argsOf(cmd *cobra.Command) string {
	_, args, _ := strings.Cut(cmd.Use, " ")
	return args
}

func addFlags(b *strings.Builder, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		name := "--" + f.Name
		if f.Shorthand != "" {
			name = "-" + f.Shorthand + ", " + name
		}
		param := ""
		if f.Value.Type() != "bool" {
			param = f.Value.Type()
		}
		desc := f.Usage
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "[]" && f.DefValue != "0" {
			desc += fmt.Sprintf(" (default %s)", f.DefValue)
		}
		addEntry(b, name, param, desc)
	})
}

func addEntry(b *strings.Builder, name, param, desc string) {
	line := commandStyle.Render(name)
	if param != "" {
		line += " " + parameterStyle.Render(param)
	}
	b.WriteString(line)
	b.WriteString("\n")
	b.WriteString(descriptionStyle.Render(desc))
	b.WriteString("\n")
}

func separator(b *strings.Builder) {
	b.WriteString(separatorStyle.Render(strings.Repeat("─", 80)))
	b.WriteString("\n")
}
