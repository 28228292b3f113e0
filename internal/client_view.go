package internal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/samber/lo"

	"roomchat/internal/chat"
	"roomchat/internal/storage"
)

var (
	appTitleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	menuHintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	noticeBoxStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("95")).Padding(0, 1).MarginTop(1)
	chatHeaderStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("109")).MarginTop(1)
	connectedStyle     = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	connectingStyle    = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	errorStyle         = statusStyle.Copy().Foreground(lipgloss.Color("196")).Bold(true)
	messageBodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	messageBoxStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(1, 2).MarginTop(1)
	pinnedStyle        = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("178")).Padding(0, 1).MarginTop(1)
	inputBoxStyle      = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	timestampStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	indexStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	usernameStyle      = lipgloss.NewStyle().Bold(true)
	activeUserStyle    = usernameStyle.Copy().Foreground(lipgloss.Color("213"))
	systemMessageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	reactionStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("150"))
	attachmentStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Underline(true)
	dividerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
	userColorPalette   = []lipgloss.Color{
		lipgloss.Color("45"),
		lipgloss.Color("81"),
		lipgloss.Color("141"),
		lipgloss.Color("98"),
		lipgloss.Color("63"),
		lipgloss.Color("135"),
		lipgloss.Color("32"),
	}
)

const visibleMessages = 30

func (model *TUIModel) View() string {
	if model.mode == modeChat {
		return model.renderChatView()
	}
	return model.renderPrompt()
}

func (model *TUIModel) renderPrompt() string {
	hint := "Enter your display name"
	switch model.mode {
	case modePasskeyPrompt:
		hint = "Enter the shared passkey"
	case modeRoomPrompt:
		hint = "Pick a room, or press Enter for General"
	}
	sections := []string{
		appTitleStyle.Render("RoomChat"),
		menuHintStyle.Render(hint),
	}
	if notices := model.renderNotices(); notices != "" {
		sections = append(sections, notices)
	}
	sections = append(sections, inputBoxStyle.Render(model.textInput.View()), menuHintStyle.Render("Enter to continue • Esc to quit"))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model *TUIModel) renderChatView() string {
	headerSegments := []string{"RoomChat", "Room " + model.room, "User " + model.username}
	if model.recipient != "" {
		headerSegments = append(headerSegments, "To "+model.recipient)
	}
	headerSegments = append(headerSegments, fmt.Sprintf("Online %d", len(model.roster)))
	header := chatHeaderStyle.Render(strings.Join(headerSegments, dividerStyle))

	var statusLine string
	switch {
	case model.connectionError != nil && !model.isConnected:
		statusLine = errorStyle.Render("Connection error: " + model.connectionError.Error() + " (retrying)")
	case model.isConnected:
		statusLine = connectedStyle.Render("Connected" + dividerStyle + strings.Join(model.roster, ", "))
	default:
		statusLine = connectingStyle.Render("Connecting…")
	}

	sections := []string{header, statusLine}
	if model.pinned != nil {
		sections = append(sections, pinnedStyle.Render("📌 "+model.pinned.User+": "+model.pinned.Text))
	}

	var messageLines []string
	start := 0
	if len(model.messages) > visibleMessages {
		start = len(model.messages) - visibleMessages
	}
	for i := start; i < len(model.messages); i++ {
		messageLines = append(messageLines, model.renderChatMessage(i+1, model.messages[i]))
	}
	if len(messageLines) == 0 {
		messageLines = append(messageLines, systemMessageStyle.Render("No messages yet. Say hi and start the conversation."))
	}
	sections = append(sections, messageBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, messageLines...)))

	if typing := model.typingLine(); typing != "" {
		sections = append(sections, systemMessageStyle.Render(typing))
	}
	if notices := model.renderNotices(); notices != "" {
		sections = append(sections, notices)
	}
	sections = append(sections, inputBoxStyle.Render(model.textInput.View()), menuHintStyle.Render(helpText))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderChatMessage renders one numbered log line with its attachment and
// reactions.
func (model *TUIModel) renderChatMessage(n int, msg chat.MessageView) string {
	number := indexStyle.Render(fmt.Sprintf("%3d", n))
	timestamp := timestampStyle.Render(fmt.Sprintf("[%s]", msg.Timestamp.Local().Format("15:04")))

	nameStyle := usernameStyle.Copy().Foreground(colorForUser(msg.User))
	if msg.User == model.username {
		nameStyle = activeUserStyle
	}
	name := nameStyle.Render(msg.User)
	if msg.Recipient != "" {
		name += timestampStyle.Render(" → " + msg.Recipient)
	}

	body := messageBodyStyle.Render(strings.ReplaceAll(msg.Text, "\n", "\n      "))
	line := lipgloss.JoinHorizontal(lipgloss.Left, number, " ", timestamp, " ", name, ": ", body)

	var extras []string
	if msg.FileURL != "" {
		extras = append(extras, attachmentStyle.Render(fmt.Sprintf("📎 %s (%s)", resolveFileURL(model.serverURL, msg.FileURL), msg.FileType)))
	}
	if summary := summarizeReactions(msg.Reactions); summary != "" {
		extras = append(extras, reactionStyle.Render(summary))
	}
	if len(extras) == 0 {
		return line
	}
	return lipgloss.JoinVertical(lipgloss.Left, append([]string{line}, lo.Map(extras, func(s string, _ int) string { return "      " + s })...)...)
}

func (model *TUIModel) typingLine() string {
	var names []string
	for user, typing := range model.typing {
		if typing {
			names = append(names, user)
		}
	}
	sort.Strings(names)
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing…"
	default:
		return strings.Join(names, ", ") + " are typing…"
	}
}

func (model *TUIModel) renderNotices() string {
	if len(model.notices) == 0 {
		return ""
	}
	lines := lo.Map(model.notices, func(n notice, _ int) string {
		style := systemMessageStyle
		if n.isErr {
			style = errorStyle.Copy().MarginTop(0)
		}
		return style.Render(n.text) + timestampStyle.Render(" "+humanize.Time(n.at))
	})
	return noticeBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// summarizeReactions groups reactions by symbol, keeping first-seen order.
func summarizeReactions(reactions []storage.Reaction) string {
	if len(reactions) == 0 {
		return ""
	}
	counts := lo.CountValuesBy(reactions, func(r storage.Reaction) string { return r.Symbol })
	symbols := lo.Uniq(lo.Map(reactions, func(r storage.Reaction, _ int) string { return r.Symbol }))
	parts := lo.Map(symbols, func(symbol string, _ int) string {
		return fmt.Sprintf("%s %d", symbol, counts[symbol])
	})
	return strings.Join(parts, "  ")
}

func colorForUser(name string) lipgloss.Color {
	if len(userColorPalette) == 0 {
		return lipgloss.Color("249")
	}
	if name == "" {
		return userColorPalette[0]
	}
	var sum int
	for _, r := range name {
		sum += int(r)
	}
	return userColorPalette[sum%len(userColorPalette)]
}
