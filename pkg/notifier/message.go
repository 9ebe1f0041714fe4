package notifier

import (
	"fmt"
	"time"
)

// SOSMessage 联系人收到的SOS消息内容
type SOSMessage struct {
	AlertID     string
	ContactName string
	UserName    string
	Location    string
	StartedAt   time.Time
}

// Subject 邮件标题
func (m SOSMessage) Subject() string {
	return fmt.Sprintf("URGENT: SOS Alert from %s", m.UserName)
}

// Body 邮件正文
func (m SOSMessage) Body() string {
	location := m.Location
	if location == "" {
		location = "Unknown"
	}
	return fmt.Sprintf(`Hello %s,

An employee has activated an SOS alert:

Employee: %s
Location: %s
Alert ID: %s
Time: %s

Please respond immediately!
`, m.ContactName, m.UserName, location, m.AlertID, m.StartedAt.UTC().Format("2006-01-02 15:04:05 MST"))
}

// FormatLocation 优先使用地址，其次坐标
func FormatLocation(address *string, lat, lon *float64) string {
	if address != nil && *address != "" {
		return *address
	}
	if lat != nil && lon != nil {
		return fmt.Sprintf("%.6f, %.6f", *lat, *lon)
	}
	return ""
}
