package repository

import (
	"context"
	"time"

	"giftbox-rest-api/internal/logger"
	"giftbox-rest-api/internal/model"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const creditAttempts = 3

// MongoDBPlayerRepository implements PlayerRepository using MongoDB.
//
// Player documents may carry fields owned by other services (scores, profile),
// so every write is a partial $set/$inc/$push. Transaction ids are made unique
// by the _id of the consumed transactions collection; the marker is written as
// pending, the player document is updated, then the marker is completed.
type MongoDBPlayerRepository struct {
	client       *mongo.Client
	db           *mongo.Database
	players      *mongo.Collection
	transactions *mongo.Collection
}

// NewMongoDBPlayerRepository connects the process-wide client pool and ensures indexes.
func NewMongoDBPlayerRepository(uri, database, playersCollection, transactionsCollection string) (*MongoDBPlayerRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to MongoDB")
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "failed to ping MongoDB")
	}

	db := client.Database(database)
	r := &MongoDBPlayerRepository{
		client:       client,
		db:           db,
		players:      db.Collection(playersCollection),
		transactions: db.Collection(transactionsCollection),
	}

	if err := r.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info("mongodb player store connected",
		zap.String("database", database),
		zap.String("players", playersCollection),
		zap.String("transactions", transactionsCollection))
	return r, nil
}

func (r *MongoDBPlayerRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.players.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "fid", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// Second line of defence: a transaction id may appear in only one player's log.
			Keys: bson.D{{Key: "boosterTransactions.transactionId", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"boosterTransactions.transactionId": bson.M{"$exists": true}}),
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create player indexes")
	}

	_, err = r.transactions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	return errors.Wrap(err, "failed to create transaction indexes")
}

type boosterTransactionDocument struct {
	Kind          int    `bson:"kind"`
	Quantity      int64  `bson:"quantity"`
	TransactionID string `bson:"transactionId"`
	Timestamp     int64  `bson:"timestamp"`
}

// playerDocument is the subset of a player document this service reads.
type playerDocument struct {
	FID                   int64                        `bson:"fid"`
	LastShareTime         *int64                       `bson:"lastShareTime,omitempty"`
	LastFollowTime        *int64                       `bson:"lastFollowTime,omitempty"`
	LastMiniAppTime       *int64                       `bson:"lastMiniAppTime,omitempty"`
	HasFollowed           bool                         `bson:"hasFollowed,omitempty"`
	GiftBoxClaimsInPeriod int                          `bson:"giftBoxClaimsInPeriod,omitempty"`
	LastGiftBoxUpdate     *int64                       `bson:"lastGiftBoxUpdate,omitempty"`
	Boosters              map[string]int64             `bson:"boosters,omitempty"`
	BoosterTransactions   []boosterTransactionDocument `bson:"boosterTransactions,omitempty"`
	GrantVersion          int64                        `bson:"grantVersion,omitempty"`
}

type consumedTransactionDocument struct {
	TransactionID string    `bson:"_id"`
	FID           int64     `bson:"fid"`
	Kind          int       `bson:"kind"`
	Quantity      int64     `bson:"quantity"`
	Timestamp     int64     `bson:"timestamp"`
	Status        string    `bson:"status"`
	CreatedAt     time.Time `bson:"createdAt"`
}

func (d *playerDocument) toModel() *model.PlayerRecord {
	p := &model.PlayerRecord{
		FID:                   d.FID,
		LastShareTime:         d.LastShareTime,
		LastFollowTime:        d.LastFollowTime,
		LastMiniAppTime:       d.LastMiniAppTime,
		HasFollowed:           d.HasFollowed,
		GiftBoxClaimsInPeriod: d.GiftBoxClaimsInPeriod,
		LastGiftBoxUpdate:     d.LastGiftBoxUpdate,
		Boosters:              d.Boosters,
		BoosterTransactions:   make([]model.BoosterTransaction, 0, len(d.BoosterTransactions)),
		GrantVersion:          d.GrantVersion,
	}
	if p.Boosters == nil {
		p.Boosters = map[string]int64{}
	}
	for _, tx := range d.BoosterTransactions {
		p.BoosterTransactions = append(p.BoosterTransactions, model.BoosterTransaction{
			Kind:          model.BoosterKind(tx.Kind),
			Quantity:      tx.Quantity,
			TransactionID: tx.TransactionID,
			Timestamp:     tx.Timestamp,
		})
	}
	return p
}

func (d *consumedTransactionDocument) toModel() *model.ConsumedTransaction {
	return &model.ConsumedTransaction{
		TransactionID: d.TransactionID,
		FID:           d.FID,
		Kind:          model.BoosterKind(d.Kind),
		Quantity:      d.Quantity,
		Timestamp:     d.Timestamp,
		Status:        d.Status,
	}
}

func mongoChannelField(ch model.Channel) (string, error) {
	switch ch {
	case model.ChannelShare:
		return "lastShareTime", nil
	case model.ChannelFollow:
		return "lastFollowTime", nil
	case model.ChannelMiniApp:
		return "lastMiniAppTime", nil
	}
	return "", errors.Errorf("unknown channel %q", ch)
}

// GetPlayer retrieves a player document by fid.
func (r *MongoDBPlayerRepository) GetPlayer(ctx context.Context, fid int64) (*model.PlayerRecord, error) {
	var doc playerDocument
	err := r.players.FindOne(ctx, bson.M{"fid": fid}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get player")
	}
	return doc.toModel(), nil
}

// ApplyGrant sets the grant fields if grantVersion still equals expectedVersion.
// A missing document counts as version 0 and is created by the upsert; a
// concurrent writer shows up as a duplicate key on fid.
func (r *MongoDBPlayerRepository) ApplyGrant(ctx context.Context, fid int64, expectedVersion int64, update model.GrantUpdate) error {
	field, err := mongoChannelField(update.Channel)
	if err != nil {
		return err
	}

	filter := bson.M{"fid": fid}
	if expectedVersion == 0 {
		filter["$or"] = bson.A{
			bson.M{"grantVersion": bson.M{"$exists": false}},
			bson.M{"grantVersion": 0},
		}
	} else {
		filter["grantVersion"] = expectedVersion
	}

	set := bson.M{
		field:                   update.GrantTime,
		"giftBoxClaimsInPeriod": update.ClaimsInPeriod,
		"lastGiftBoxUpdate":     update.LastGiftBoxUpdate,
		"grantVersion":          expectedVersion + 1,
	}
	if update.Channel == model.ChannelFollow {
		set["hasFollowed"] = true
	}

	res, err := r.players.UpdateOne(ctx, filter, bson.M{"$set": set}, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return ErrGrantConflict
	}
	if err != nil {
		return errors.Wrap(err, "failed to apply grant")
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return ErrGrantConflict
	}
	return nil
}

// CreditBooster consumes the transaction id and credits the player.
func (r *MongoDBPlayerRepository) CreditBooster(ctx context.Context, fid int64, btx model.BoosterTransaction) (int64, error) {
	marker := consumedTransactionDocument{
		TransactionID: btx.TransactionID,
		FID:           fid,
		Kind:          btx.Kind.Code(),
		Quantity:      btx.Quantity,
		Timestamp:     btx.Timestamp,
		Status:        model.TxStatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	if _, err := r.transactions.InsertOne(ctx, marker); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return 0, ErrDuplicateTransaction
		}
		return 0, errors.Wrap(err, "failed to record transaction")
	}

	total, err := r.applyCredit(ctx, fid, btx)
	if err != nil {
		if errors.Is(err, ErrDuplicateTransaction) {
			r.adoptMarker(btx.TransactionID)
		} else {
			r.releaseMarker(btx.TransactionID)
		}
		return 0, err
	}

	_, err = r.transactions.UpdateOne(ctx,
		bson.M{"_id": btx.TransactionID},
		bson.M{"$set": bson.M{"status": model.TxStatusCompleted}})
	if err != nil {
		// the reconciler completes it later
		logger.Warn("failed to complete transaction marker",
			zap.String("transaction_id", btx.TransactionID), zap.Error(err))
	}
	return total, nil
}

func (r *MongoDBPlayerRepository) applyCredit(ctx context.Context, fid int64, btx model.BoosterTransaction) (int64, error) {
	key := "boosters." + btx.Kind.String()
	filter := bson.M{
		"fid":                               fid,
		"boosterTransactions.transactionId": bson.M{"$ne": btx.TransactionID},
	}
	update := bson.M{
		"$inc": bson.M{key: btx.Quantity},
		"$push": bson.M{"boosterTransactions": boosterTransactionDocument{
			Kind:          btx.Kind.Code(),
			Quantity:      btx.Quantity,
			TransactionID: btx.TransactionID,
			Timestamp:     btx.Timestamp,
		}},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After).
		SetProjection(bson.M{"boosters": 1})

	for attempt := 0; attempt < creditAttempts; attempt++ {
		var doc playerDocument
		err := r.players.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
		if err == nil {
			return doc.Boosters[btx.Kind.String()], nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return 0, errors.Wrap(err, "failed to credit booster")
		}

		// Either the id is already in some player's log, or another request
		// created this player's document first.
		n, cerr := r.players.CountDocuments(ctx, bson.M{"boosterTransactions.transactionId": btx.TransactionID})
		if cerr != nil {
			return 0, errors.Wrap(cerr, "failed to credit booster")
		}
		if n > 0 {
			return 0, ErrDuplicateTransaction
		}
	}
	return 0, errors.New("failed to credit booster: player document kept changing")
}

// releaseMarker removes a pending marker so the purchase can be retried.
func (r *MongoDBPlayerRepository) releaseMarker(transactionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := r.transactions.DeleteOne(ctx, bson.M{"_id": transactionID, "status": model.TxStatusPending})
	if err != nil {
		logger.Error("failed to release transaction marker",
			zap.String("transaction_id", transactionID), zap.Error(err))
	}
}

// adoptMarker rewrites a marker to describe the player log entry that already holds the id.
func (r *MongoDBPlayerRepository) adoptMarker(transactionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	owner, err := r.findInPlayerLog(ctx, transactionID)
	if err != nil || owner == nil {
		logger.Error("failed to adopt transaction marker",
			zap.String("transaction_id", transactionID), zap.Error(err))
		return
	}

	_, err = r.transactions.UpdateOne(ctx, bson.M{"_id": transactionID}, bson.M{"$set": bson.M{
		"fid":       owner.FID,
		"kind":      owner.Kind.Code(),
		"quantity":  owner.Quantity,
		"timestamp": owner.Timestamp,
		"status":    model.TxStatusCompleted,
	}})
	if err != nil {
		logger.Error("failed to adopt transaction marker",
			zap.String("transaction_id", transactionID), zap.Error(err))
	}
}

// findInPlayerLog scans player logs for a transaction id.
func (r *MongoDBPlayerRepository) findInPlayerLog(ctx context.Context, transactionID string) (*model.ConsumedTransaction, error) {
	opts := options.FindOne().SetProjection(bson.M{"fid": 1, "boosterTransactions.$": 1})

	var doc playerDocument
	err := r.players.FindOne(ctx, bson.M{"boosterTransactions.transactionId": transactionID}, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan player logs")
	}
	if len(doc.BoosterTransactions) == 0 {
		return nil, nil
	}

	tx := doc.BoosterTransactions[0]
	return &model.ConsumedTransaction{
		TransactionID: tx.TransactionID,
		FID:           doc.FID,
		Kind:          model.BoosterKind(tx.Kind),
		Quantity:      tx.Quantity,
		Timestamp:     tx.Timestamp,
		Status:        model.TxStatusCompleted,
	}, nil
}

// DebitBooster decrements a booster count only if enough are held.
func (r *MongoDBPlayerRepository) DebitBooster(ctx context.Context, fid int64, kind model.BoosterKind, quantity int64) (map[string]int64, error) {
	key := "boosters." + kind.String()
	filter := bson.M{"fid": fid, key: bson.M{"$gte": quantity}}
	update := bson.M{"$inc": bson.M{key: -quantity}}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"boosters": 1})

	var doc playerDocument
	err := r.players.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrInsufficientInventory
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to debit booster")
	}
	if doc.Boosters == nil {
		doc.Boosters = map[string]int64{}
	}
	return doc.Boosters, nil
}

// FindTransaction checks the consumed transactions collection, then the player logs.
func (r *MongoDBPlayerRepository) FindTransaction(ctx context.Context, transactionID string) (*model.ConsumedTransaction, error) {
	var doc consumedTransactionDocument
	err := r.transactions.FindOne(ctx, bson.M{"_id": transactionID}).Decode(&doc)
	if err == nil {
		return doc.toModel(), nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, errors.Wrap(err, "failed to find transaction")
	}
	return r.findInPlayerLog(ctx, transactionID)
}

// ReconcilePendingTransactions completes markers whose credit reached the
// player log and releases the rest.
func (r *MongoDBPlayerRepository) ReconcilePendingTransactions(ctx context.Context, threshold time.Duration) (int64, error) {
	cutoff := time.Now().Add(-threshold).UTC()
	cursor, err := r.transactions.Find(ctx, bson.M{
		"status":    model.TxStatusPending,
		"createdAt": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to list pending transactions")
	}
	defer cursor.Close(ctx)

	var pending []consumedTransactionDocument
	if err := cursor.All(ctx, &pending); err != nil {
		return 0, errors.Wrap(err, "failed to read pending transactions")
	}

	var resolved int64
	for _, m := range pending {
		n, err := r.players.CountDocuments(ctx, bson.M{"fid": m.FID, "boosterTransactions.transactionId": m.TransactionID})
		if err != nil {
			return resolved, errors.Wrap(err, "failed to check player log")
		}

		if n > 0 {
			_, err = r.transactions.UpdateOne(ctx,
				bson.M{"_id": m.TransactionID, "status": model.TxStatusPending},
				bson.M{"$set": bson.M{"status": model.TxStatusCompleted}})
		} else {
			_, err = r.transactions.DeleteOne(ctx, bson.M{"_id": m.TransactionID, "status": model.TxStatusPending})
		}
		if err != nil {
			return resolved, errors.Wrap(err, "failed to resolve pending transaction")
		}
		resolved++
	}

	if resolved > 0 {
		logger.Info("reconciled pending transactions", zap.Int64("count", resolved), zap.Duration("threshold", threshold))
	}
	return resolved, nil
}

// GetStats returns statistics about the player collections.
func (r *MongoDBPlayerRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})
	stats["status"] = "connected"

	players, err := r.players.EstimatedDocumentCount(ctx)
	if err != nil {
		return stats, errors.Wrap(err, "failed to count players")
	}
	stats["total_players"] = players

	txs, err := r.transactions.EstimatedDocumentCount(ctx)
	if err != nil {
		return stats, errors.Wrap(err, "failed to count transactions")
	}
	stats["total_transactions"] = txs

	pending, err := r.transactions.CountDocuments(ctx, bson.M{"status": model.TxStatusPending})
	if err == nil {
		stats["pending_transactions"] = pending
	}

	result := r.db.RunCommand(ctx, bson.D{{Key: "collStats", Value: r.players.Name()}})
	var collStats bson.M
	if err := result.Decode(&collStats); err == nil {
		if size, ok := collStats["size"].(int64); ok {
			stats["db_size_bytes"] = size
		} else if size, ok := collStats["size"].(int32); ok {
			stats["db_size_bytes"] = int64(size)
		}
	}

	return stats, nil
}

// Ping checks the MongoDB connection.
func (r *MongoDBPlayerRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

// Close closes the MongoDB connection.
func (r *MongoDBPlayerRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

// Ensure MongoDBPlayerRepository implements PlayerRepository
var _ PlayerRepository = (*MongoDBPlayerRepository)(nil)
