package classify

import "strings"

const inputPlaceholder = "{input}"

// promptTemplate asks for general-grained Japanese category names, comma
// separated on one line between [BEG] and [END], with two few-shot examples.
const promptTemplate = `
# TASK
文章からカテゴリを抽出してください。カテゴリは言語名や成果物、使用技術、タスク名とします。

# INPUT
{input}

# OUTPUT FORMAT
以下のカンマ区切り形式で1行で出力してください。
最初に[BEG]を出力してください。
最後に[END]を出力してください。
[BEG]カテゴリ1, カテゴリ2, ...[END]

# LIMITATION
カテゴリは日本名を用いてください。
カテゴリは一般的な粒度としてください。
ニッチなカテゴリや詳細なカテゴリは一般的な粒度にまとめてください。
指定のフォーマットを厳密に守ってください。指定外の情報は出力しません。

# EXAMPLES
INPUT: Excelのツールを作成します
OUTPUT: [BEG]excel, ツール開発[END]

INPUT: GASのご相談に乗ります!
OUTPUT: [BEG]Google App Script, 相談, サポート[END]

# OUTPUT
`

// RenderPrompt fills the classification prompt with text.
func RenderPrompt(text string) string {
	return strings.Replace(promptTemplate, inputPlaceholder, text, 1)
}
