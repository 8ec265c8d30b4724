package entry

import (
	"fmt"
	"strings"

	"github.com/Corn-mrb/project/bot"
	"github.com/bwmarrin/discordgo"
)

// Discord's embed limits.
const (
	maxEmbedFields     = 25
	maxEmbedFieldName  = 256
	maxEmbedFieldValue = 1024
)

const (
	msgNoRoles           = "없음"
	msgNoMinRole         = "없음 (모두 입장 가능)"
	msgUnknownRole       = "알 수 없는 역할"
	msgNotFound          = "❌ 존재하지 않는 매장 코드입니다."
	msgNotOwnerUpdate    = "❌ 본인이 생성한 매장만 수정할 수 있습니다."
	msgNotOwnerDelete    = "❌ 본인이 생성한 매장만 삭제할 수 있습니다."
	msgNoChange          = "❌ 변경할 내용이 없습니다."
	msgNoStores          = "생성한 매장이 없습니다."
	msgCodeExhausted     = "❌ 사용 가능한 매장 코드가 없습니다. 기존 매장을 삭제한 뒤 다시 시도해주세요."
	msgInvalidOptions    = "❌ 입력값이 올바르지 않습니다."
	msgPersistenceFailed = "⚠️ 변경 사항을 저장하지 못했습니다. 관리자에게 문의해주세요."
	msgInternalError     = "❌ 요청을 처리하는 중 오류가 발생했습니다. 잠시 후 다시 시도해주세요."
	msgStoreGone         = "❌ 매장 정보를 찾을 수 없습니다. 다시 시도해주세요."
	msgGuildOnly         = "❌ 서버에서만 사용할 수 있는 명령어입니다."
)

func roleMention(roleID string) string {
	return "<@&" + roleID + ">"
}

func joinRoleNames(names []string) string {
	if len(names) == 0 {
		return msgNoRoles
	}
	return strings.Join(names, ", ")
}

func forbiddenMessage(allowedRoles []string) string {
	return "❌ 권한이 없습니다.\n**허용된 역할:** " + strings.Join(allowedRoles, ", ")
}

func challengeEmbed(s Store) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🔐 %s - 암구호 입력", s.Name),
		Description: "역할 조건을 충족했습니다.\n\n마지막으로 암구호를 입력해주세요.\n암구호를 일반 메시지로 보내주시면 됩니다.",
		Color:       bot.ColorBlue,
	}
}

func deniedEmbed(s Store) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "❌ 입장 거부",
		Description: fmt.Sprintf("**%s**\n\n입장이 거부되었습니다.", s.Name),
		Color:       bot.ColorRed,
	}
}

func field(name string, value string) *discordgo.MessageEmbedField {
	return &discordgo.MessageEmbedField{
		Name:  bot.Truncate(name, maxEmbedFieldName),
		Value: bot.Truncate(value, maxEmbedFieldValue),
	}
}

func inlineField(name string, value string) *discordgo.MessageEmbedField {
	f := field(name, value)
	f.Inline = true
	return f
}

// outcomeEmbed is the reply shown to the requester. inDM selects how a
// granted role is shown, since role mentions don't render in DMs.
func outcomeEmbed(out Outcome, inDM bool) *discordgo.MessageEmbed {
	s := out.Store
	switch out.State {
	case StateAlreadyApproved:
		return &discordgo.MessageEmbed{
			Title:       "✅ 이미 입장 처리가 완료되었습니다",
			Description: fmt.Sprintf("**%s**\n\n이미 입장 승인을 받으셨습니다.", s.Name),
			Color:       bot.ColorGreen,
		}
	case StatePassphrasePending:
		return &discordgo.MessageEmbed{
			Title:       "🔐 암구호 입력 필요",
			Description: fmt.Sprintf("**%s**\n\nDM으로 암구호 입력 요청을 보냈습니다.\nDM을 확인해주세요.", s.Name),
			Color:       bot.ColorBlue,
		}
	case StateApproved:
		e := &discordgo.MessageEmbed{
			Title:       "✅ 입장 승인",
			Description: fmt.Sprintf("**%s**\n\n입장이 승인되었습니다!", s.Name),
			Color:       bot.ColorGreen,
		}
		reason := "역할 조건 충족"
		if out.Reason == ReasonRoleAndPassphrase {
			reason = "역할 조건 충족 & 암구호 정답"
		}
		e.Fields = append(e.Fields, field("승인 사유", reason))
		if out.GrantedRoleID != "" {
			role := roleMention(out.GrantedRoleID)
			if inDM {
				role = out.GrantedRoleName
			}
			e.Fields = append(e.Fields, field("역할 부여", role+" 역할이 부여되었습니다"))
		}
		return e
	}

	switch out.Reason {
	case ReasonInvalidCode:
		return &discordgo.MessageEmbed{
			Title:       "❌ 입장 불가",
			Description: "유효하지 않은 매장 코드입니다.",
			Color:       bot.ColorRed,
		}
	case ReasonNotMember:
		return &discordgo.MessageEmbed{
			Title:       "❌ 입장 불가",
			Description: fmt.Sprintf("**%s**\n\n디스코드 서버에 먼저 가입해주세요.", s.Name),
			Color:       bot.ColorRed,
		}
	case ReasonRoleShortfall:
		minRole := out.MinRoleName
		if minRole == "" {
			minRole = msgUnknownRole
		}
		e := deniedEmbed(s)
		e.Fields = []*discordgo.MessageEmbedField{
			field("거부 사유", "역할 미달"),
			field("필요 조건", minRole+" 이상 역할 필수"),
			field("현재 보유 역할", joinRoleNames(out.RoleNames)),
		}
		return e
	case ReasonDeliveryFailure:
		return &discordgo.MessageEmbed{
			Title:       "❌ DM 전송 실패",
			Description: "DM이 차단되어 있습니다.\n디스코드 설정에서 DM을 허용해주세요.",
			Color:       bot.ColorRed,
		}
	case ReasonPassphraseMismatch:
		e := deniedEmbed(s)
		e.Fields = []*discordgo.MessageEmbedField{
			field("거부 사유", "암구호 불일치"),
			field("참고", "역할 조건은 충족했으나 암구호가 일치하지 않습니다."),
		}
		return e
	default:
		return &discordgo.MessageEmbed{
			Title:       "❌ 입장 불가",
			Description: msgStoreGone,
			Color:       bot.ColorRed,
		}
	}
}

// ownerNotificationEmbed is the DM sent to the store owner, or nil for
// outcomes the owner isn't told about.
func ownerNotificationEmbed(out Outcome, user Requester) *discordgo.MessageEmbed {
	s := out.Store
	switch {
	case out.State == StateApproved:
		e := &discordgo.MessageEmbed{
			Title:       "✅ 입장 승인",
			Description: fmt.Sprintf("**매장**: %s\n**방문자**: %s", s.Name, user.Name),
			Color:       bot.ColorGreen,
		}
		path := "역할 조건 충족 (암구호 없음)"
		if out.Reason == ReasonRoleAndPassphrase {
			path = "역할 조건 충족 & 암구호 정답"
		}
		e.Fields = append(e.Fields, field("승인 경로", path))
		if len(out.RoleNames) > 0 {
			e.Fields = append(e.Fields, field("보유 역할", joinRoleNames(out.RoleNames)))
		}
		if out.GrantedRoleName != "" {
			e.Fields = append(e.Fields, field("역할 부여", out.GrantedRoleName+" 부여됨"))
		}
		return e
	case out.State != StateDenied:
		return nil
	}

	e := &discordgo.MessageEmbed{
		Title:       "⚠️ 입장 거부",
		Description: fmt.Sprintf("**매장**: %s\n**시도자**: %s", s.Name, user.Name),
		Color:       bot.ColorOrange,
	}
	switch out.Reason {
	case ReasonNotMember:
		e.Fields = append(e.Fields, inlineField("사유", "서버 미가입"))
	case ReasonRoleShortfall:
		e.Fields = append(
			e.Fields,
			field("거부 사유", "역할 미달"),
			field("보유 역할", joinRoleNames(out.RoleNames)),
		)
	case ReasonPassphraseMismatch:
		e.Fields = append(e.Fields, field("거부 사유", "암구호 불일치"))
		if len(out.RoleNames) > 0 {
			e.Fields = append(e.Fields, field("보유 역할", joinRoleNames(out.RoleNames)))
		}
	default:
		return nil
	}
	return e
}

func createdEmbed(code string, s Store) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("🏪 %s - 매장 등록 완료", s.Name),
		Description: fmt.Sprintf(
			"## 매장 코드\n# **`%s`**\n\n방문자는 `/%s %s` 명령어를 사용하세요.",
			code, commandEnter, code,
		),
		Color: bot.ColorBlue,
	}
	if s.MinRoleID != "" {
		e.Fields = append(e.Fields, inlineField("최소 역할", roleMention(string(s.MinRoleID))))
	} else {
		e.Fields = append(e.Fields, inlineField("최소 역할", msgNoMinRole))
	}
	if s.GrantRoleID != "" {
		e.Fields = append(e.Fields, inlineField("부여 역할", roleMention(string(s.GrantRoleID))))
	}
	if s.HasPassphrase() {
		e.Fields = append(e.Fields, inlineField("암구호 설정", "✅ 설정됨"))
	} else {
		e.Fields = append(e.Fields, inlineField("암구호 설정", "❌ 없음"))
	}
	e.Fields = append(
		e.Fields,
		field(
			"💡 사용 방법",
			fmt.Sprintf(
				"• 매장 코드를 방문자에게 공유하세요\n• 방문자가 `/%s 코드`를 입력하면 자동 검증됩니다\n• `/%s`으로 조건 변경 가능",
				commandEnter, commandStoreUpdate,
			),
		),
	)
	return e
}

func changeLine(c Change) string {
	switch c.Kind {
	case ChangeName:
		return "매장명: " + c.Value
	case ChangeMinRole:
		return "최소역할: " + roleMention(c.Value)
	case ChangeGrantRole:
		return "부여역할: " + roleMention(c.Value)
	case ChangePassphraseSet:
		return "암구호: 변경됨"
	case ChangePassphraseCleared:
		return "암구호: 제거됨"
	default:
		return ""
	}
}

func updatedEmbed(code string, s Store, changes []Change) *discordgo.MessageEmbed {
	lines := make([]string, 0, len(changes))
	for _, c := range changes {
		lines = append(lines, changeLine(c))
	}
	return &discordgo.MessageEmbed{
		Title:       "✅ 매장 정보 수정 완료",
		Description: fmt.Sprintf("**매장**: %s\n**코드**: `%s`", s.Name, code),
		Color:       bot.ColorGreen,
		Fields:      []*discordgo.MessageEmbedField{field("변경사항", strings.Join(lines, "\n"))},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "QR 코드는 그대로 유지되며, 다음 인증부터 새 조건이 적용됩니다.",
		},
	}
}

// listEmbed renders the caller's stores. roleName resolves role IDs to
// names and returns "" for roles that no longer exist.
func listEmbed(listings []Listing, roleName func(guildID string, roleID string) string) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title: "📋 내 매장 목록",
		Color: bot.ColorBlue,
	}
	if len(listings) > maxEmbedFields {
		e.Footer = &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("외 %d개 매장", len(listings)-maxEmbedFields),
		}
		listings = listings[:maxEmbedFields]
	}
	for _, l := range listings {
		s := l.Store
		var b strings.Builder
		fmt.Fprintf(&b, "**코드**: `%s`\n", l.Code)

		minRole := ""
		if s.MinRoleID != "" {
			minRole = roleName(string(s.GuildID), string(s.MinRoleID))
		}
		if minRole != "" {
			fmt.Fprintf(&b, "**최소역할**: %s\n", minRole)
		} else {
			fmt.Fprintf(&b, "**최소역할**: %s\n", msgNoMinRole)
		}
		if s.GrantRoleID != "" {
			if grantRole := roleName(string(s.GuildID), string(s.GrantRoleID)); grantRole != "" {
				fmt.Fprintf(&b, "**부여역할**: %s\n", grantRole)
			}
		}
		if s.HasPassphrase() {
			b.WriteString("**암구호**: 설정됨\n")
		}
		e.Fields = append(e.Fields, field("🏪 "+s.Name, b.String()))
	}
	return e
}

// withSaveWarning marks a reply whose change was applied but not saved.
func withSaveWarning(e *discordgo.MessageEmbed) *discordgo.MessageEmbed {
	e.Footer = &discordgo.MessageEmbedFooter{Text: msgPersistenceFailed}
	return e
}
