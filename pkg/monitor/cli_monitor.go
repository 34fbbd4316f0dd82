package monitor

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

var toolLabels = map[string]string{
	"generate_image": "生成",
	"edit_image":     "编辑",
}

func label(tool string) string {
	if l, ok := toolLabels[tool]; ok {
		return l
	}
	return "执行"
}

// CLIMonitor implements the Monitor interface, printing tool progress to the
// terminal while a turn is running.
type CLIMonitor struct {
	mu     sync.Mutex
	writer io.Writer // The output destination, typically os.Stdout.
}

// NewCLIMonitor creates a new CLI monitor. A nil writer means os.Stdout.
func NewCLIMonitor(w io.Writer) *CLIMonitor {
	if w == nil {
		w = os.Stdout
	}
	return &CLIMonitor{writer: w}
}

func (m *CLIMonitor) Start() error {
	PrintBanner(m.writer)
	return nil
}

func (m *CLIMonitor) Stop() error {
	return nil
}

// OnEvent receives and displays a progress event
func (m *CLIMonitor) OnEvent(ev Event) {
	var line string
	switch ev.Type {
	case EventToolStart:
		line = fmt.Sprintf("正在%s图片...", label(ev.Tool))
	case EventToolDone:
		if ev.Failed {
			line = fmt.Sprintf("%s失败：%s", label(ev.Tool), ev.Detail)
		} else {
			line = fmt.Sprintf("%s完成！", label(ev.Tool))
		}
	case EventToolIgnored:
		line = fmt.Sprintf("已忽略本轮追加的工具调用：%s", ev.Detail)
	default:
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Use gray color for timestamp
	fmt.Fprintf(m.writer, "\033[90m[%s]\033[0m %s\n", ev.Timestamp.Format("15:04:05"), line)
}

// PrintBanner prints the startup banner
func PrintBanner(w io.Writer) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "图像生成与编辑 Agent")
	fmt.Fprintln(w, rule)
}
