package storemongo

import (
	"time"

	"github.com/google/uuid"
	"github.com/lattice-mc/netsync/engine/common"
	"github.com/lattice-mc/netsync/engine/nslog"
	"github.com/lattice-mc/netsync/engine/store/storecommon"
	"gopkg.in/mgo.v2"
	"gopkg.in/mgo.v2/bson"
)

const (
	_DEFAULT_DB_NAME = "netsync"

	ranksCollection       = "player_ranks"
	mutesCollection       = "player_mutes"
	auditCollection       = "audit_log"
	requestsCollection    = "friend_requests"
	friendsCollection     = "friendships"
	preferencesCollection = "player_preferences"
)

type mongoBackend struct {
	session *mgo.Session
	db      *mgo.Database
}

// OpenMongoDB opens mongodb as durable store
func OpenMongoDB(url string, dbname string) (storecommon.Backend, error) {
	nslog.Debugf("Connecting MongoDB ...")
	session, err := mgo.Dial(url)
	if err != nil {
		return nil, err
	}

	session.SetMode(mgo.Monotonic, true)
	if dbname == "" {
		// if db is not specified, use default
		dbname = _DEFAULT_DB_NAME
	}
	return &mongoBackend{
		session: session,
		db:      session.DB(dbname),
	}, nil
}

func (b *mongoBackend) c(name string) *mgo.Collection {
	return b.db.C(name)
}

func (b *mongoBackend) GetRank(id uuid.UUID) (common.Rank, bool, error) {
	var doc struct {
		Rank string `bson:"rank"`
	}
	err := b.c(ranksCollection).FindId(id.String()).One(&doc)
	if err == mgo.ErrNotFound {
		return common.RankDefault, false, nil
	} else if err != nil {
		return common.RankDefault, false, err
	}
	rank, err := common.ParseRank(doc.Rank)
	if err != nil {
		return common.RankDefault, false, err
	}
	return rank, true, nil
}

func (b *mongoBackend) SetRank(id uuid.UUID, rank common.Rank) error {
	_, err := b.c(ranksCollection).UpsertId(id.String(), bson.M{
		"$set": bson.M{"rank": rank.String()},
	})
	return err
}

func (b *mongoBackend) IsMuted(id uuid.UUID, now time.Time) (bool, error) {
	var doc struct {
		Forever bool      `bson:"forever"`
		Until   time.Time `bson:"until"`
	}
	err := b.c(mutesCollection).FindId(id.String()).One(&doc)
	if err == mgo.ErrNotFound {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return doc.Forever || doc.Until.After(now), nil
}

func (b *mongoBackend) MutePlayer(id uuid.UUID, until time.Time) error {
	_, err := b.c(mutesCollection).UpsertId(id.String(), bson.M{
		"$set": bson.M{"forever": until.IsZero(), "until": until},
	})
	return err
}

func (b *mongoBackend) UnmutePlayer(id uuid.UUID) error {
	err := b.c(mutesCollection).RemoveId(id.String())
	if err == mgo.ErrNotFound {
		return nil
	}
	return err
}

func (b *mongoBackend) RecordAuditEntry(entry storecommon.AuditEntry) error {
	return b.c(auditCollection).Insert(bson.M{
		"target":   entry.Target.String(),
		"actor":    entry.Actor.String(),
		"category": entry.Category,
		"reason":   entry.Reason,
		"at":       entry.At,
	})
}

func (b *mongoBackend) SaveFriendRequest(req storecommon.FriendRequestRecord) error {
	_, err := b.c(requestsCollection).UpsertId(req.ID.String(), bson.M{
		"$set": bson.M{
			"sender":    req.Sender.String(),
			"recipient": req.Recipient.String(),
			"state":     req.State,
			"created":   req.CreatedAt,
			"origin":    req.Origin,
		},
	})
	return err
}

func (b *mongoBackend) LoadFriends(id uuid.UUID) ([]uuid.UUID, error) {
	var doc struct {
		Friends []string `bson:"friends"`
	}
	err := b.c(friendsCollection).FindId(id.String()).One(&doc)
	if err == mgo.ErrNotFound {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	friends := make([]uuid.UUID, 0, len(doc.Friends))
	for _, s := range doc.Friends {
		friend, err := uuid.Parse(s)
		if err != nil {
			nslog.Warnf("storemongo: bad friend id %q of %s", s, id)
			continue
		}
		friends = append(friends, friend)
	}
	return friends, nil
}

func (b *mongoBackend) AddFriendship(a, c uuid.UUID) error {
	col := b.c(friendsCollection)
	if _, err := col.UpsertId(a.String(), bson.M{"$addToSet": bson.M{"friends": c.String()}}); err != nil {
		return err
	}
	_, err := col.UpsertId(c.String(), bson.M{"$addToSet": bson.M{"friends": a.String()}})
	return err
}

func (b *mongoBackend) RemoveFriendship(a, c uuid.UUID) error {
	col := b.c(friendsCollection)
	if err := col.UpdateId(a.String(), bson.M{"$pull": bson.M{"friends": c.String()}}); err != nil && err != mgo.ErrNotFound {
		return err
	}
	if err := col.UpdateId(c.String(), bson.M{"$pull": bson.M{"friends": a.String()}}); err != nil && err != mgo.ErrNotFound {
		return err
	}
	return nil
}

func (b *mongoBackend) LoadPreferences(id uuid.UUID) ([]byte, error) {
	var doc struct {
		Data []byte `bson:"data"`
	}
	err := b.c(preferencesCollection).FindId(id.String()).One(&doc)
	if err == mgo.ErrNotFound {
		return nil, nil
	}
	return doc.Data, err
}

func (b *mongoBackend) SavePreferences(id uuid.UUID, blob []byte) error {
	_, err := b.c(preferencesCollection).UpsertId(id.String(), bson.M{
		"$set": bson.M{"data": blob},
	})
	return err
}

func (b *mongoBackend) Close() error {
	b.session.Close()
	return nil
}
