package handlers

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/embed-archiver/internal/app"
	"github.com/yourusername/embed-archiver/internal/domain"
)

// Message command names, as registered with Discord
const (
	CommandRetrieveArchive = "Retrieve Archive"
	CommandArchiveNow      = "Archive Now"
)

const (
	textNotApproved     = "❌ This channel is not approved for archiving"
	textAlreadyArchived = "❌ Already archived"
	textNoEmbeds        = "❌ No embeds on message. Attachments and non-embedded links are not archived."
	textQueued          = "✅ Queued for archiving"
	textUnavailable     = "❌ Unable to retrieve archive for this message. Likely Reason: "
	textPartial         = "⚠️ Some media could not be archived:"
	textFailed          = "❌ Something went wrong, try again later"

	maxContent     = 2000 // Discord message content limit
	maxErrorDetail = 300
)

// maxBodyBytes bounds interaction payloads
const maxBodyBytes = 1 << 20

// Commands returns the message commands the interactions endpoint answers
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{Type: discordgo.MessageApplicationCommand, Name: CommandRetrieveArchive},
		{Type: discordgo.MessageApplicationCommand, Name: CommandArchiveNow},
	}
}

// InteractionHandler answers Discord interactions for the message commands
type InteractionHandler struct {
	archives      ArchiveService
	publicKey     ed25519.PublicKey
	publicBaseURL string
	logger        *zap.Logger
}

// NewInteractionHandler creates a new interaction handler. publicKeyHex is the
// application's hex encoded ed25519 key.
func NewInteractionHandler(archives ArchiveService, publicKeyHex, publicBaseURL string, logger *zap.Logger) (*InteractionHandler, error) {
	key, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(key))
	}

	return &InteractionHandler{
		archives:      archives,
		publicKey:     ed25519.PublicKey(key),
		publicBaseURL: publicBaseURL,
		logger:        logger,
	}, nil
}

// resolvedMessages carries the target message of a message command.
// discordgo's embed video type has no proxy URL, so messages are decoded
// into domain types directly.
type resolvedMessages struct {
	Data struct {
		TargetID string `json:"target_id"`
		Resolved struct {
			Messages map[string]domain.Message `json:"messages"`
		} `json:"resolved"`
	} `json:"data"`
}

// Handle handles POST /interactions
func (h *InteractionHandler) Handle(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	if !discordgo.VerifyInteraction(c.Request, h.publicKey) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid request signature"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	var interaction discordgo.Interaction
	if err := json.Unmarshal(body, &interaction); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid interaction"})
		return
	}

	switch interaction.Type {
	case discordgo.InteractionPing:
		c.JSON(http.StatusOK, discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong})
	case discordgo.InteractionApplicationCommand:
		var resolved resolvedMessages
		if err := json.Unmarshal(body, &resolved); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid interaction data"})
			return
		}
		c.JSON(http.StatusOK, h.command(c.Request.Context(), &interaction, &resolved))
	default:
		c.JSON(http.StatusOK, discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong})
	}
}

func (h *InteractionHandler) command(ctx context.Context, interaction *discordgo.Interaction, resolved *resolvedMessages) *discordgo.InteractionResponse {
	data := interaction.ApplicationCommandData()
	message, ok := targetMessage(resolved)
	if !ok {
		return ephemeral("❌ No message selected", nil)
	}

	log := h.logger.With(
		zap.String("command", data.Name),
		zap.String("channel_id", interaction.ChannelID),
		zap.String("message_id", string(message.ID)))

	switch data.Name {
	case CommandArchiveNow:
		return h.archiveNow(ctx, log, interaction.ChannelID, message)
	case CommandRetrieveArchive:
		return h.retrieve(ctx, log, interaction.ChannelID, message)
	default:
		return ephemeral("Unknown command "+data.Name, nil)
	}
}

func (h *InteractionHandler) archiveNow(ctx context.Context, log *zap.Logger, channelID string, message domain.Message) *discordgo.InteractionResponse {
	err := h.archives.ArchiveNow(ctx, channelID, message)
	switch {
	case err == nil:
		log.Info("Archive requested from interaction")
		return ephemeral(textQueued, nil)
	case errors.Is(err, app.ErrChannelNotApproved):
		return ephemeral(textNotApproved, nil)
	case errors.Is(err, app.ErrAlreadyArchived):
		return ephemeral(textAlreadyArchived, nil)
	case errors.Is(err, app.ErrNoQualifyingEmbeds):
		return ephemeral(textNoEmbeds, nil)
	default:
		log.Error("Failed to queue archive from interaction", zap.Error(err))
		return ephemeral(textFailed, nil)
	}
}

func (h *InteractionHandler) retrieve(ctx context.Context, log *zap.Logger, channelID string, message domain.Message) *discordgo.InteractionResponse {
	result, err := h.archives.Explain(ctx, channelID, message.ID, &message)
	if err != nil {
		log.Error("Failed to look up archive from interaction", zap.Error(err))
		return ephemeral(textFailed, nil)
	}

	if !result.Found() {
		return ephemeral(textUnavailable+result.Reason, nil)
	}

	record := result.Record
	content := ""
	if record.HasErrors() {
		lines := []string{textPartial}
		if record.Failed() {
			lines = []string{textUnavailable + result.Reason}
		}
		for _, e := range record.Errors {
			line := "- " + e.Message
			if e.Detail != "" {
				line += "\n  " + clip(e.Detail, maxErrorDetail)
			}
			lines = append(lines, line)
		}
		content = clip(strings.Join(lines, "\n"), maxContent)
	}

	return ephemeral(content, archiveEmbeds(h.publicBaseURL, record))
}

func targetMessage(resolved *resolvedMessages) (domain.Message, bool) {
	messages := resolved.Data.Resolved.Messages
	if m, ok := messages[resolved.Data.TargetID]; ok {
		return m, true
	}
	for _, m := range messages {
		return m, true
	}
	return domain.Message{}, false
}

// archiveEmbeds lists each archived media as an embed with its original and
// archived URL side by side
func archiveEmbeds(baseURL string, record *domain.ArchiveRecord) []*discordgo.MessageEmbed {
	embeds := make([]*discordgo.MessageEmbed, 0, len(record.Media))
	for i, m := range record.Media {
		n := strconv.Itoa(i)
		embeds = append(embeds, &discordgo.MessageEmbed{
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Original URL_" + n, Value: m.SourceURL, Inline: true},
				{Name: "Archive URL_" + n, Value: archiveURL(baseURL, m.StoredKey), Inline: true},
			},
		})
	}
	return embeds
}

// clip shortens s to at most n runes
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

func ephemeral(content string, embeds []*discordgo.MessageEmbed) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:         content,
			Embeds:          embeds,
			Flags:           discordgo.MessageFlagsEphemeral,
			AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}},
		},
	}
}
