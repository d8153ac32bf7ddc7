package identity

import "readingroom/pkg/types"

// catalogue is the fixed, ordered set of anonymous identities.
// FUNCTIONAL DISCOVERY: Order matters. The first joiner is always the fox, which
// keeps identities stable across reconnect-heavy lessons.
var catalogue = []types.Identity{
	{Index: 0, Emoji: "🦊", Label: "Fuchs"},
	{Index: 1, Emoji: "🐻", Label: "Bär"},
	{Index: 2, Emoji: "🦁", Label: "Löwe"},
	{Index: 3, Emoji: "🐯", Label: "Tiger"},
	{Index: 4, Emoji: "🦋", Label: "Schmetterling"},
	{Index: 5, Emoji: "🐢", Label: "Schildkröte"},
	{Index: 6, Emoji: "🦉", Label: "Eule"},
	{Index: 7, Emoji: "🐬", Label: "Delfin"},
	{Index: 8, Emoji: "🦅", Label: "Adler"},
	{Index: 9, Emoji: "🐺", Label: "Wolf"},
	{Index: 10, Emoji: "🦌", Label: "Hirsch"},
	{Index: 11, Emoji: "🐘", Label: "Elefant"},
	{Index: 12, Emoji: "🦒", Label: "Giraffe"},
	{Index: 13, Emoji: "🐼", Label: "Panda"},
	{Index: 14, Emoji: "🦜", Label: "Papagei"},
	{Index: 15, Emoji: "🐨", Label: "Koala"},
	{Index: 16, Emoji: "🦩", Label: "Flamingo"},
	{Index: 17, Emoji: "🐸", Label: "Frosch"},
	{Index: 18, Emoji: "🦔", Label: "Igel"},
	{Index: 19, Emoji: "🐿️", Label: "Eichhörnchen"},
	{Index: 20, Emoji: "🦭", Label: "Robbe"},
	{Index: 21, Emoji: "🐧", Label: "Pinguin"},
	{Index: 22, Emoji: "🦚", Label: "Pfau"},
	{Index: 23, Emoji: "🐝", Label: "Biene"},
	{Index: 24, Emoji: "🦎", Label: "Eidechse"},
	{Index: 25, Emoji: "🐙", Label: "Oktopus"},
	{Index: 26, Emoji: "🦀", Label: "Krabbe"},
	{Index: 27, Emoji: "🐌", Label: "Schnecke"},
}

// Size returns the number of distinct identities
func Size() int {
	return len(catalogue)
}

// At returns the catalogue entry at index i
func At(i int) types.Identity {
	return catalogue[i]
}
