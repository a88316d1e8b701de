package bot

import (
	"fmt"
	"strings"

	"github.com/stupiduntilnot/chousei/internal/window"
)

const personaFormat = `あなたは「%s」という名前のLINEグループのアシスタントです。
以下の会話履歴を参考にして、ユーザーの質問に答えてください。`

const replyRules = `【返答のルール】
- フレンドリーで親しみやすい口調で話してください
- 会話の流れを理解して、文脈に沿った返答をしてください
- 今日の予定について聞かれたら【今日の会話】を優先して参照してください
- 絵文字を適度に使ってください😊
- 短く、わかりやすく答えてください`

// BuildPrompt renders the generation prompt from the persona, both history
// views and the user's query. systemPrompt overrides the default persona
// when set.
func BuildPrompt(botName, systemPrompt string, win window.ContextWindow, query string) string {
	persona := systemPrompt
	if persona == "" {
		persona = fmt.Sprintf(personaFormat, botName)
	}

	var sb strings.Builder
	sb.WriteString(persona)
	sb.WriteString("\n\n【会話履歴】\n")
	sb.WriteString(win.Full)
	sb.WriteString("\n\n【今日の会話】\n")
	sb.WriteString(win.Today)
	sb.WriteString("\n\n【ユーザーの質問】\n")
	sb.WriteString(query)
	sb.WriteString("\n\n")
	sb.WriteString(replyRules)
	return sb.String()
}
