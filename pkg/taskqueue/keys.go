package taskqueue

import "fmt"

func pendingKey(sessionID string) string   { return fmt.Sprintf("podex:tasks:%s:pending", sessionID) }
func activeKey(sessionID string) string    { return fmt.Sprintf("podex:tasks:%s:active", sessionID) }
func completedKey(sessionID string) string { return fmt.Sprintf("podex:tasks:%s:completed", sessionID) }
func historyKey(sessionID string) string   { return fmt.Sprintf("podex:tasks:%s:history", sessionID) }
func taskKey(taskID string) string         { return fmt.Sprintf("podex:task:%s", taskID) }
