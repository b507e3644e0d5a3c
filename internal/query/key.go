package query

// Kind names a family of cached reads. Invalidating a Kind marks every key of
// that family stale.
type Kind string

const (
	KindConversations    Kind = "conversations"
	KindMessages         Kind = "messages"
	KindListings         Kind = "listings"
	KindListing          Kind = "listing"
	KindProviderListings Kind = "provider-listings"
	KindAdminListings    Kind = "admin-listings"
	KindCategories       Kind = "categories"
	KindCategoryCounts   Kind = "category-counts"
)

// Key identifies one cached read. Repositories and the realtime synchronizer
// build keys through the constructors below so both sides agree on identity.
type Key struct {
	Kind  Kind
	Param string
}

func (k Key) String() string {
	if k.Param == "" {
		return string(k.Kind)
	}
	return string(k.Kind) + ":" + k.Param
}

// ConversationsKey is the conversation list as seen by identity.
func ConversationsKey(identity string) Key {
	return Key{Kind: KindConversations, Param: identity}
}

// MessagesKey is the message history of one conversation.
func MessagesKey(conversationID string) Key {
	return Key{Kind: KindMessages, Param: conversationID}
}

// ListingsKey is a filtered listing search; param is the canonical filter encoding.
func ListingsKey(param string) Key {
	return Key{Kind: KindListings, Param: param}
}

func ListingKey(id string) Key {
	return Key{Kind: KindListing, Param: id}
}

func ProviderListingsKey(providerID string) Key {
	return Key{Kind: KindProviderListings, Param: providerID}
}

func AdminListingsKey() Key {
	return Key{Kind: KindAdminListings}
}

func CategoriesKey() Key {
	return Key{Kind: KindCategories}
}

func CategoryCountsKey() Key {
	return Key{Kind: KindCategoryCounts}
}
