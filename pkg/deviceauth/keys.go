package deviceauth

import "fmt"

func deviceCodeKey(deviceCode string) string { return fmt.Sprintf("podex:device:code:%s", deviceCode) }
func userCodeKey(userCode string) string     { return fmt.Sprintf("podex:device:usercode:%s", userCode) }
func sessionKey(sessionID string) string     { return fmt.Sprintf("podex:devicesession:%s", sessionID) }
func userSessionsKey(userID string) string   { return fmt.Sprintf("podex:user:%s:sessions", userID) }
func jtiBlacklistKey(jti string) string      { return fmt.Sprintf("podex:jti:blacklist:%s", jti) }
func pollRateLimitKey(deviceCode string) string {
	return fmt.Sprintf("podex:device:pollrate:%s", deviceCode)
}
