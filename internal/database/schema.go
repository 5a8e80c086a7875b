package database

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id BIGINT PRIMARY KEY,
    username VARCHAR(255),
    first_name VARCHAR(255),
    last_name VARCHAR(255),
    language_code VARCHAR(16),
    is_premium TINYINT(1) NOT NULL DEFAULT 0,
    credits INT NOT NULL DEFAULT 0,
    credits_expire_at TIMESTAMP NULL DEFAULT NULL,
    expiry_warned TINYINT(1) NOT NULL DEFAULT 0,
    selected_model VARCHAR(64) NOT NULL DEFAULT 'minimax-hailuo',
    referred_by_user_id BIGINT NULL,
    referred_by_tag VARCHAR(64),
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS ref_tags (
    name VARCHAR(64) PRIMARY KEY,
    user_id BIGINT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_ref_tags_user (user_id)
);

CREATE TABLE IF NOT EXISTS task_queue (
    id VARCHAR(128) PRIMARY KEY,
    user_id BIGINT NOT NULL,
    model VARCHAR(64) NOT NULL,
    prompt TEXT,
    image_url TEXT,
    video_url TEXT,
    duration INT NULL,
    sound TINYINT(1) NOT NULL DEFAULT 0,
    character_orientation VARCHAR(32),
    status VARCHAR(16) NOT NULL,
    credits_charged INT NOT NULL DEFAULT 0,
    result_url TEXT,
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    completed_at TIMESTAMP NULL DEFAULT NULL,
    KEY idx_queue_user_status (user_id, status, created_at),
    KEY idx_queue_status (status)
);

CREATE TABLE IF NOT EXISTS payments (
    id VARCHAR(128) PRIMARY KEY,
    user_id BIGINT NOT NULL,
    plan_id VARCHAR(32) NOT NULL,
    credits INT NOT NULL,
    amount VARCHAR(16) NOT NULL,
    currency VARCHAR(8) NOT NULL,
    status VARCHAR(32) NOT NULL,
    confirmation_token VARCHAR(255),
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    completed_at TIMESTAMP NULL DEFAULT NULL,
    KEY idx_payments_user_status (user_id, status)
);

CREATE TABLE IF NOT EXISTS ref_events (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    type VARCHAR(16) NOT NULL,
    referrer_user_id BIGINT NULL,
    tag VARCHAR(64),
    triggered_user_id BIGINT NOT NULL,
    is_new_user TINYINT(1) NOT NULL DEFAULT 0,
    payment_id VARCHAR(128) NULL,
    amount INT NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    date CHAR(10) NOT NULL,
    UNIQUE KEY uniq_revenue_payment (payment_id),
    KEY idx_events_referrer_tag_date (referrer_user_id, tag, date)
)
`
