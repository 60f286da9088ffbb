package datanorm

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/emersion/go-vcard"
)

const fieldSocialProfile = "X-SOCIALPROFILE"

type vcardBlock struct {
	line int
	text string
}

// readVCards splits the file into BEGIN:VCARD...END:VCARD blocks and decodes
// each one on its own, so a broken card never takes its neighbours down.
func readVCards(data []byte, src *Source) ([]ParsedVCard, error) {
	blocks := splitVCardBlocks(decodeText(data, src), src)

	var cards []ParsedVCard
	for _, b := range blocks {
		card, err := vcard.NewDecoder(strings.NewReader(b.text)).Decode()
		if err != nil {
			src.warnMalformed("vcard at line %d: %v", b.line, err)
			continue
		}
		pc := parseCard(card, len(cards))
		pc.Line = b.line
		cards = append(cards, pc)
	}
	if len(cards) == 0 {
		return nil, ErrEmptyFile
	}
	return cards, nil
}

func splitVCardBlocks(data []byte, src *Source) []vcardBlock {
	var (
		blocks  []vcardBlock
		current strings.Builder
		start   int
		open    bool
	)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		marker := strings.ToUpper(strings.TrimSpace(text))

		switch {
		case marker == "BEGIN:VCARD":
			if open {
				src.warnMalformed("vcard at line %d: missing END:VCARD", start)
			}
			current.Reset()
			open, start = true, line
			current.WriteString(text + "\r\n")
		case marker == "END:VCARD":
			if !open {
				continue
			}
			current.WriteString(text + "\r\n")
			blocks = append(blocks, vcardBlock{line: start, text: current.String()})
			open = false
		case open:
			current.WriteString(text + "\r\n")
		}
	}
	if open {
		src.warnMalformed("vcard at line %d: missing END:VCARD", start)
	}
	return blocks
}

func parseCard(card vcard.Card, index int) ParsedVCard {
	pc := ParsedVCard{
		Index:  index,
		FN:     strings.TrimSpace(card.PreferredValue(vcard.FieldFormattedName)),
		Emails: nonEmpty(card.Values(vcard.FieldEmail)),
		Title:  strings.TrimSpace(card.Value(vcard.FieldTitle)),
		Note:   strings.TrimSpace(card.Value(vcard.FieldNote)),
		URLs:   nonEmpty(card.Values(vcard.FieldURL)),
	}

	if n := card.Name(); n != nil {
		pc.GivenName = strings.TrimSpace(n.GivenName)
		pc.FamilyName = strings.TrimSpace(n.FamilyName)
	}

	// ORG is "company;department;..."
	if org := card.Value(vcard.FieldOrganization); org != "" {
		pc.Org = strings.TrimSpace(strings.SplitN(org, ";", 2)[0])
	}

	for _, f := range card[vcard.FieldTelephone] {
		value := strings.TrimSpace(f.Value)
		if value == "" {
			continue
		}
		if hasParamType(f, "whatsapp") {
			if pc.WhatsApp == "" {
				pc.WhatsApp = value
			}
			continue
		}
		pc.Tels = append(pc.Tels, value)
	}

	for _, f := range card[fieldSocialProfile] {
		value := strings.TrimSpace(f.Value)
		if value == "" {
			continue
		}
		network := ""
		if types := f.Params[vcard.ParamType]; len(types) > 0 {
			network = strings.ToLower(types[0])
		}
		if network == "" {
			network = socialNetworkFromURL(value)
		}
		if network == "" {
			continue
		}
		if pc.Socials == nil {
			pc.Socials = make(map[string]string)
		}
		if _, exists := pc.Socials[network]; !exists {
			pc.Socials[network] = value
		}
	}
	return pc
}

func hasParamType(f *vcard.Field, want string) bool {
	for _, t := range f.Params[vcard.ParamType] {
		for _, part := range strings.Split(t, ",") {
			if strings.EqualFold(strings.TrimSpace(part), want) {
				return true
			}
		}
	}
	return false
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
