package replies

import (
	"math/rand"
	"strings"
)

const (
	defaultReply   = "✨ I can tell you about the weather, your zodiac vibes, or share a fortune. What would you like to know?"
	weatherShyLine = "The weather spirits are being shy right now. Let's try again in a moment ✨"
)

// zodiacSymbols maps sign names as they appear in mention text to symbols.
var zodiacSymbols = map[string]string{
	"aries": "♈", "taurus": "♉", "gemini": "♊", "cancer": "♋",
	"leo": "♌", "virgo": "♍", "libra": "♎", "scorpio": "♏",
	"sagittarius": "♐", "capricorn": "♑", "aquarius": "♒", "pisces": "♓",
}

// zodiacVibes holds the canned line per sign symbol.
var zodiacVibes = map[string]string{
	"♈": "Aries, your spark is extra dreamy today. Even the clouds are inspired by your gentle fire ✨",
	"♉": "Taurus, the earth whispers sweet secrets. Your garden of possibilities is blooming 🌸",
	"♊": "Gemini, your thoughts are like soft wind chimes today. Let them make beautiful music ☁️",
	"♋": "Cancer, the moon painted your path with silver light. Each step is a gentle discovery 🌙",
	"♌": "Leo, your warmth is like morning sunbeams through lace curtains. So softly powerful ✨",
	"♍": "Virgo, you're finding poetry in the details today. Every small thing holds magic 🌸",
	"♎": "Libra, your balance today is like a butterfly on a flower. Delicate yet perfect ☁️",
	"♏": "Scorpio, your depths are reflecting starlight. Even mysteries can be gentle 🌙",
	"♐": "Sagittarius, your arrows are trailing stardust today. Aim with your dreams ✨",
	"♑": "Capricorn, your mountain path is lined with wildflowers. Success can be soft 🌸",
	"♒": "Aquarius, your innovations are like ripples on still water. Gentle waves of change ☁️",
	"♓": "Pisces, you're swimming in streams of stardust. Let your imagination float 🌙",
}

var fortunes = []string{
	"Your energy blooms where your attention flows 🌸",
	"A gentle breeze carries an unexpected blessing ☁️",
	"The quietest moments hold the loudest magic ✨",
	"Like moonlight on water, your path will shimmer clear 🌙",
	"A garden of possibilities is taking root in your dreams 🌸",
	"Your kindness creates ripples of starlight ✨",
	"Sometimes the softest whispers hold the strongest magic ☁️",
	"A pocket full of sunshine is waiting to surprise you 🌸",
}

var greetings = []string{
	"The sky feels like a soft playlist today ☁️",
	"Morning whispers through pastel clouds ✨",
	"Today's energy flows like gentle watercolors 🌸",
	"The world is wearing its dreamy filter today 🌙",
	"Nature's poetry is extra gentle this morning ✨",
	"The universe is humming a calm melody today ☁️",
}

// ExtractZodiacSign returns the symbol for the first sign named in the text,
// or "" if none is.
func ExtractZodiacSign(text string) string {
	lower := strings.ToLower(text)
	for sign, symbol := range zodiacSymbols {
		if strings.Contains(lower, sign) {
			return symbol
		}
	}
	return ""
}

// ZodiacVibe returns the canned line for a sign symbol.
func ZodiacVibe(symbol string) string {
	if vibe, ok := zodiacVibes[symbol]; ok {
		return vibe
	}
	return "The stars are writing you a personal note. Check back in a moment ✨"
}

// FortuneBloom returns a random fortune.
func FortuneBloom() string {
	return fortunes[rand.Intn(len(fortunes))]
}

// DailyGreeting returns a random greeting for the scheduled daily post.
func DailyGreeting() string {
	return greetings[rand.Intn(len(greetings))]
}
