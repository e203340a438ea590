package model

import "net/http"

// Channel is an outbound delivery medium.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// Channels lists every channel in dispatch order.
var Channels = []Channel{ChannelEmail, ChannelSMS, ChannelWhatsApp}

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp:
		return true
	}
	return false
}

// Subscriptions holds the per-channel opt-in flags of a user.
type Subscriptions struct {
	Email    bool `json:"email" dynamodbav:"email" bson:"email"`
	SMS      bool `json:"sms" dynamodbav:"sms" bson:"sms"`
	WhatsApp bool `json:"whatsapp" dynamodbav:"whatsapp" bson:"whatsapp"`
}

// UserPreferences is the stored contact info and subscription state of one user.
type UserPreferences struct {
	UserID        string        `json:"userId" dynamodbav:"userId" bson:"_id"`
	Email         string        `json:"email,omitempty" dynamodbav:"email,omitempty" bson:"email,omitempty"`
	Phone         string        `json:"phone,omitempty" dynamodbav:"phone,omitempty" bson:"phone,omitempty"`
	Subscriptions Subscriptions `json:"settings" dynamodbav:"settings" bson:"settings"`
}

// Contact returns the stored address for the channel.
// SMS and WhatsApp share the phone number.
func (p *UserPreferences) Contact(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return p.Email
	case ChannelSMS, ChannelWhatsApp:
		return p.Phone
	}
	return ""
}

func (p *UserPreferences) Subscribed(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return p.Subscriptions.Email
	case ChannelSMS:
		return p.Subscriptions.SMS
	case ChannelWhatsApp:
		return p.Subscriptions.WhatsApp
	}
	return false
}

func (p *UserPreferences) SetSubscription(ch Channel, on bool) {
	switch ch {
	case ChannelEmail:
		p.Subscriptions.Email = on
	case ChannelSMS:
		p.Subscriptions.SMS = on
	case ChannelWhatsApp:
		p.Subscriptions.WhatsApp = on
	}
}

// Addressable reports whether a task may be dispatched on the channel:
// the user is subscribed and a contact address is on file.
func (p *UserPreferences) Addressable(ch Channel) bool {
	return p.Subscribed(ch) && p.Contact(ch) != ""
}

// DeliveryTask is one queued delivery on a single channel.
type DeliveryTask struct {
	Channel   Channel `json:"type"`
	Recipient string  `json:"to"`
	Text      string  `json:"text"`
	Subject   string  `json:"subject,omitempty"`
}

// NotificationRequest is the payload of the notify API.
// Type and To are accepted but not consulted: channels and recipients
// always come from the stored preferences.
type NotificationRequest struct {
	Type    string `json:"type"`
	To      string `json:"to"`
	Text    string `json:"text"`
	Subject string `json:"subject,omitempty"`
}

// SubscriptionRequest is the payload of the subscribe and unsubscribe APIs.
// Only flags that are present and true take effect.
type SubscriptionRequest struct {
	Email    bool `json:"email,omitempty"`
	SMS      bool `json:"sms,omitempty"`
	WhatsApp bool `json:"whatsapp,omitempty"`
}

// Requested reports whether the request names the channel.
func (r SubscriptionRequest) Requested(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return r.Email
	case ChannelSMS:
		return r.SMS
	case ChannelWhatsApp:
		return r.WhatsApp
	}
	return false
}

// ContactRequest updates the contact fields of a user. Nil fields are kept.
type ContactRequest struct {
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

// Response is the outcome of an API-facing operation.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

func Success() Response {
	return Response{StatusCode: http.StatusOK, Body: "Success"}
}

func NotFound() Response {
	return Response{StatusCode: http.StatusNotFound, Body: "Not found"}
}
