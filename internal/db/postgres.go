package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/models"
)

// Postgres wraps a postgres DB connection.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL sets up the necessary tables if they don't exist. Campaign CRUD
// itself lives in the marketplace backend; the engine only needs the tables
// it reads and the logs it appends to.
const schemaSQL = `CREATE TABLE IF NOT EXISTS campaigns (
    id SERIAL PRIMARY KEY,
    seller_id INT NOT NULL DEFAULT 0,
    ad_type TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft',
    approval_status TEXT NOT NULL DEFAULT '',
    product_id INT NOT NULL DEFAULT 0,
    start_date DATE NOT NULL,
    end_date DATE NOT NULL,
    bid_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
    banner_image TEXT NOT NULL DEFAULT '',
    banner_link TEXT NOT NULL DEFAULT '',
    auto_paused BOOLEAN NOT NULL DEFAULT FALSE,
    click_count BIGINT NOT NULL DEFAULT 0,
    reach_count BIGINT NOT NULL DEFAULT 0,
    notes TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS campaign_payments (
    id SERIAL PRIMARY KEY,
    campaign_id INT NOT NULL REFERENCES campaigns(id),
    payment_status TEXT NOT NULL DEFAULT 'pending'
);

CREATE TABLE IF NOT EXISTS click_events (
    id BIGSERIAL PRIMARY KEY,
    campaign_id INT NOT NULL REFERENCES campaigns(id),
    ip_address TEXT NOT NULL,
    clicked_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS reach_events (
    id BIGSERIAL PRIMARY KEY,
    campaign_id INT NOT NULL REFERENCES campaigns(id),
    ip_address TEXT NOT NULL,
    viewed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Ranking signal sources. Owned by the marketplace backend; created here so
-- the engine can run against an empty database in development.
CREATE TABLE IF NOT EXISTS products (
    id SERIAL PRIMARY KEY,
    seller_id INT NOT NULL DEFAULT 0,
    product_name TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    price DOUBLE PRECISION NOT NULL DEFAULT 0,
    sale_price DOUBLE PRECISION NOT NULL DEFAULT 0,
    stock_quantity INT NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'active',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS reviews (
    id SERIAL PRIMARY KEY,
    product_id INT NOT NULL REFERENCES products(id),
    rating DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
    id SERIAL PRIMARY KEY,
    status TEXT NOT NULL DEFAULT 'pending',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS order_items (
    id SERIAL PRIMARY KEY,
    order_id INT NOT NULL REFERENCES orders(id),
    product_id INT NOT NULL REFERENCES products(id)
);

-- Performance indexes for the serving and fraud paths
CREATE INDEX IF NOT EXISTS idx_campaigns_serveable ON campaigns (ad_type, status, start_date, end_date) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_campaigns_product_id ON campaigns (product_id);
CREATE INDEX IF NOT EXISTS idx_campaign_payments_campaign ON campaign_payments (campaign_id);
CREATE INDEX IF NOT EXISTS idx_click_events_lookup ON click_events (campaign_id, ip_address, clicked_at);
CREATE INDEX IF NOT EXISTS idx_click_events_campaign_time ON click_events (campaign_id, clicked_at);
CREATE INDEX IF NOT EXISTS idx_reach_events_lookup ON reach_events (campaign_id, ip_address, viewed_at);
`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

// ensureSchema creates the required tables if they do not exist.
func (p *Postgres) ensureSchema() error {
	if _, err := p.DB.ExecContext(context.Background(), schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const campaignColumns = `c.id, c.seller_id, c.ad_type, c.status, c.approval_status,
    c.product_id, c.start_date, c.end_date, c.bid_amount, c.banner_image,
    c.banner_link, c.auto_paused, c.click_count, c.reach_count, c.notes,
    c.created_at, COALESCE(cp.payment_status, '') , (cp.id IS NOT NULL)`

func scanCampaign(rows *sql.Rows) (models.Campaign, error) {
	var c models.Campaign
	var paymentStatus string
	if err := rows.Scan(&c.ID, &c.SellerID, &c.AdType, &c.Status, &c.ApprovalStatus,
		&c.ProductID, &c.StartDate, &c.EndDate, &c.BidAmount, &c.BannerImage,
		&c.BannerLink, &c.AutoPaused, &c.ClickCount, &c.ReachCount, &c.Notes,
		&c.CreatedAt, &paymentStatus, &c.HasPaymentRecord); err != nil {
		return models.Campaign{}, fmt.Errorf("scan campaign: %w", err)
	}
	c.PaymentSettled = paymentStatus == "paid"
	return c, nil
}

// EligibleBannerCampaigns returns active banner_external campaigns inside
// their date window, with creative fields present and payment settled (or no
// payment row at all, which house ads rely on). Ordered by bid descending,
// creation time descending.
func (p *Postgres) EligibleBannerCampaigns(ctx context.Context, now time.Time, limit int) ([]models.Campaign, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT `+campaignColumns+`
        FROM campaigns c
        LEFT JOIN campaign_payments cp ON cp.campaign_id = c.id
        WHERE c.status = 'active'
        AND c.auto_paused = FALSE
        AND c.ad_type = 'banner_external'
        AND c.start_date <= $1::date
        AND c.end_date >= $1::date
        AND c.banner_image <> ''
        AND c.banner_link <> ''
        AND (cp.payment_status = 'paid' OR cp.id IS NULL)
        ORDER BY c.bid_amount DESC, c.created_at DESC
        LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query banner campaigns: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var cs []models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		cs = append(cs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return cs, nil
}

// EligibleProductCampaigns returns active, approved (or approval-less)
// product_internal campaigns with settled payment whose product id is in the
// requested set.
func (p *Postgres) EligibleProductCampaigns(ctx context.Context, now time.Time, productIDs []int) ([]models.Campaign, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	rows, err := p.DB.QueryContext(ctx, `SELECT `+campaignColumns+`
        FROM campaigns c
        INNER JOIN campaign_payments cp ON cp.campaign_id = c.id
        WHERE c.status = 'active'
        AND c.auto_paused = FALSE
        AND c.ad_type = 'product_internal'
        AND (c.approval_status = 'approved' OR c.approval_status = '')
        AND c.product_id = ANY($2)
        AND c.start_date <= $1::date
        AND c.end_date >= $1::date
        AND cp.payment_status = 'paid'`, now, pq.Array(productIDs))
	if err != nil {
		return nil, fmt.Errorf("query product campaigns: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var cs []models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		cs = append(cs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return cs, nil
}

// GetCampaign loads a single campaign with its payment join.
func (p *Postgres) GetCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT `+campaignColumns+`
        FROM campaigns c
        LEFT JOIN campaign_payments cp ON cp.campaign_id = c.id
        WHERE c.id = $1
        LIMIT 1`, id)
	if err != nil {
		return nil, fmt.Errorf("query campaign: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("rows error: %w", err)
		}
		return nil, nil
	}
	c, err := scanCampaign(rows)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// InsertClickEvent appends an accepted click to the log.
func (p *Postgres) InsertClickEvent(ctx context.Context, campaignID int, ip string, at time.Time) error {
	_, err := p.DB.ExecContext(ctx,
		`INSERT INTO click_events (campaign_id, ip_address, clicked_at) VALUES ($1, $2, $3)`,
		campaignID, ip, at)
	if err != nil {
		return fmt.Errorf("insert click event: %w", err)
	}
	return nil
}

// InsertReachEvent appends an accepted view to the log.
func (p *Postgres) InsertReachEvent(ctx context.Context, campaignID int, ip string, at time.Time) error {
	_, err := p.DB.ExecContext(ctx,
		`INSERT INTO reach_events (campaign_id, ip_address, viewed_at) VALUES ($1, $2, $3)`,
		campaignID, ip, at)
	if err != nil {
		return fmt.Errorf("insert reach event: %w", err)
	}
	return nil
}

// ReachRecordedOn reports whether a reach event already exists for the
// (campaign, IP) pair on the given calendar day.
func (p *Postgres) ReachRecordedOn(ctx context.Context, campaignID int, ip string, day time.Time) (bool, error) {
	var exists bool
	err := p.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM reach_events
         WHERE campaign_id = $1 AND ip_address = $2 AND viewed_at::date = $3::date)`,
		campaignID, ip, day).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check reach event: %w", err)
	}
	return exists, nil
}

// IncrementClickCount applies an atomic increment to the campaign click
// counter. Deliberately a single conditionless UPDATE so concurrent accepted
// clicks never lose updates.
func (p *Postgres) IncrementClickCount(ctx context.Context, campaignID int) error {
	_, err := p.DB.ExecContext(ctx,
		`UPDATE campaigns SET click_count = click_count + 1 WHERE id = $1`, campaignID)
	if err != nil {
		return fmt.Errorf("increment click count: %w", err)
	}
	return nil
}

// IncrementReachCount applies an atomic increment to the campaign reach counter.
func (p *Postgres) IncrementReachCount(ctx context.Context, campaignID int) error {
	_, err := p.DB.ExecContext(ctx,
		`UPDATE campaigns SET reach_count = reach_count + 1 WHERE id = $1`, campaignID)
	if err != nil {
		return fmt.Errorf("increment reach count: %w", err)
	}
	return nil
}

// SuspendCampaign sets the campaign status to suspended, marks it auto-paused
// to distinguish it from a manual suspension, and appends the note line in the
// same statement, preserving any prior notes.
func (p *Postgres) SuspendCampaign(ctx context.Context, campaignID int, note string) error {
	_, err := p.DB.ExecContext(ctx,
		`UPDATE campaigns SET status = 'suspended', auto_paused = TRUE, notes = notes || $2 WHERE id = $1`,
		campaignID, note)
	if err != nil {
		return fmt.Errorf("suspend campaign: %w", err)
	}
	return nil
}

// CountClicks returns the number of clicks from an IP on a campaign since the
// given time.
func (p *Postgres) CountClicks(ctx context.Context, campaignID int, ip string, since time.Time) (int, error) {
	var n int
	err := p.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM click_events
         WHERE campaign_id = $1 AND ip_address = $2 AND clicked_at >= $3`,
		campaignID, ip, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count clicks: %w", err)
	}
	return n, nil
}

// HasClickSince reports whether the (campaign, IP) pair produced any click at
// or after the given time. Used as the duplicate-detection fallback when the
// Redis fast path is unavailable.
func (p *Postgres) HasClickSince(ctx context.Context, campaignID int, ip string, since time.Time) (bool, error) {
	var exists bool
	err := p.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM click_events
         WHERE campaign_id = $1 AND ip_address = $2 AND clicked_at >= $3)`,
		campaignID, ip, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check recent click: %w", err)
	}
	return exists, nil
}

// CountCampaignClicks returns the campaign-wide click count since the given
// time, across all IPs.
func (p *Postgres) CountCampaignClicks(ctx context.Context, campaignID int, since time.Time) (int, error) {
	var n int
	err := p.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM click_events WHERE campaign_id = $1 AND clicked_at >= $2`,
		campaignID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count campaign clicks: %w", err)
	}
	return n, nil
}

// CountRapidIPs returns how many distinct IPs produced at least threshold
// clicks on the campaign since the given time.
func (p *Postgres) CountRapidIPs(ctx context.Context, campaignID int, since time.Time, threshold int) (int, error) {
	var n int
	err := p.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM (
            SELECT ip_address FROM click_events
            WHERE campaign_id = $1 AND clicked_at >= $2
            GROUP BY ip_address
            HAVING COUNT(*) >= $3
        ) rapid`, campaignID, since, threshold).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rapid ips: %w", err)
	}
	return n, nil
}

// CampaignStatistics aggregates log-derived totals alongside the campaign
// counters.
func (p *Postgres) CampaignStatistics(ctx context.Context, campaignID int, now time.Time) (*models.CampaignStats, error) {
	stats := &models.CampaignStats{CampaignID: campaignID}
	err := p.DB.QueryRowContext(ctx, `SELECT
            (SELECT COUNT(*) FROM reach_events WHERE campaign_id = c.id),
            (SELECT COUNT(*) FROM click_events WHERE campaign_id = c.id),
            (SELECT COUNT(*) FROM reach_events WHERE campaign_id = c.id AND viewed_at::date = $2::date),
            (SELECT COUNT(*) FROM click_events WHERE campaign_id = c.id AND clicked_at::date = $2::date),
            c.reach_count, c.click_count
        FROM campaigns c WHERE c.id = $1`, campaignID, now).
		Scan(&stats.TotalReach, &stats.TotalClicks, &stats.TodayReach, &stats.TodayClicks,
			&stats.ReachCount, &stats.ClickCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("campaign statistics: %w", err)
	}
	return stats, nil
}

// ListingSignals loads the organic ranking inputs for every active listing.
// The composite score and sponsorship bonus are applied by the ranking
// engine.
func (p *Postgres) ListingSignals(ctx context.Context, now time.Time) ([]models.ListingSignals, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT
            p.id, p.product_name, p.category, p.price, p.sale_price,
            p.stock_quantity, p.created_at,
            COALESCE(pr.avg_rating, 0),
            COALESCE(sr.avg_rating, 0),
            COALESCE(ms.cnt, 0),
            COALESCE(ct.cnt, 0)
        FROM products p
        LEFT JOIN (
            SELECT product_id, AVG(rating) AS avg_rating FROM reviews GROUP BY product_id
        ) pr ON pr.product_id = p.id
        LEFT JOIN (
            SELECT sp.seller_id, AVG(r.rating) AS avg_rating
            FROM products sp
            INNER JOIN reviews r ON r.product_id = sp.id
            GROUP BY sp.seller_id
        ) sr ON sr.seller_id = p.seller_id
        LEFT JOIN (
            SELECT oi.product_id, COUNT(*) AS cnt
            FROM order_items oi
            INNER JOIN orders o ON o.id = oi.order_id
            WHERE o.created_at >= $1::timestamp - INTERVAL '30 days'
            AND o.status <> 'cancelled'
            GROUP BY oi.product_id
        ) ms ON ms.product_id = p.id
        LEFT JOIN (
            SELECT p2.category, COUNT(*) AS cnt
            FROM products p2
            INNER JOIN order_items oi ON oi.product_id = p2.id
            INNER JOIN orders o ON o.id = oi.order_id
            WHERE o.created_at >= $1::timestamp - INTERVAL '30 days'
            AND o.status <> 'cancelled'
            GROUP BY p2.category
        ) ct ON ct.category = p.category
        WHERE p.status = 'active'`, now)
	if err != nil {
		return nil, fmt.Errorf("query listing signals: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []models.ListingSignals
	for rows.Next() {
		var ls models.ListingSignals
		if err := rows.Scan(&ls.ProductID, &ls.Name, &ls.Category, &ls.ListPrice,
			&ls.SalePrice, &ls.StockQuantity, &ls.CreatedAt, &ls.AvgProductRating,
			&ls.AvgSellerRating, &ls.MonthlySales, &ls.CategoryOrders); err != nil {
			return nil, fmt.Errorf("scan listing signals: %w", err)
		}
		out = append(out, ls)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
