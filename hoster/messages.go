package hoster

import (
	"fmt"
	"strings"

	"github.com/musichost/hoster/telegram"
)

const (
	msgAlreadyHosting = "You already have an active bot. Please use /stop to stop it before hosting a new one."
	msgIntakeComplete = "All information collected! Setting up your bot now..."
	msgNoActiveBot    = "You don't have any active bots to stop."
	msgNoActiveBots   = "You don't have any active bots."
	msgBotStopped     = "Your bot @%s has been stopped and removed."
	msgAllStopped     = "All bots have been stopped."
	msgBotActive      = "Your bot @%s is currently active."
	msgBotHosted      = "🎉 Your bot @%s has been successfully started!\n\nYou can now start using your Music Bot."
	msgSetupFailed    = "❌ Error setting up bot: %v"
)

const helpText = `🤖 Music Bot Hoster Help 🤖

Available Commands:
/start - Start the bot and get welcome message
/host - Host a new music bot
/clone - Same as /host, clones and hosts the bot
/stop - Stop your currently hosted bot
/status - Check status of your hosted bot
/help - Show this help message

Hosting Process:
1. You'll be asked for API ID (optional)
2. API Hash (optional)
3. MongoDB URI (optional)
4. Bot Token (required)
5. Log Group ID (required)
6. String Session (required)
7. Owner ID (optional)
8. Start Image URL (optional)

Notes:
- For optional fields, you can type 'None' to use defaults
- Your bot must be in the log group with admin rights
- Voice chat must be on in the log group
- Each user can host only one bot at a time`

func greeting(from telegram.User) string {
	name := strings.TrimSpace(from.FirstName)
	if name == "" {
		name = from.Username
	}
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("👋 Hi %s!\n\n"+
		"I am a Music Bot Hoster. I can help you host your own music bot.\n\n"+
		"Use /host to start hosting your bot.\n"+
		"Use /clone to clone and host from GitHub.", name)
}
